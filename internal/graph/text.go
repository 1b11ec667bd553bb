package graph

// NewText stores s as a Text record.
func NewText(h Heap, s string) (Ptr, error) {
	r, err := New(h, TagText, 0, len(s))
	if err != nil {
		return 0, err
	}
	copy(r.TailBytes(), s)
	return r.Ptr(), nil
}

// TextBytes returns the bytes of the Text record at p. Nil yields nil.
func TextBytes(sp Space, p Ptr) ([]byte, error) {
	if p.IsNil() {
		return nil, nil
	}
	r, err := LoadAs(sp, p, TagText)
	if err != nil {
		return nil, err
	}
	return r.TailBytes(), nil
}

// TextString returns the Text record at p as a string. Nil yields "".
func TextString(sp Space, p Ptr) (string, error) {
	b, err := TextBytes(sp, p)
	return string(b), err
}

func textEquals(sp Space, p Ptr, s string) (bool, error) {
	b, err := TextBytes(sp, p)
	if err != nil {
		return false, err
	}
	return string(b) == s, nil
}
