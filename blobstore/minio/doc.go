// Package minio stores published rule caches on MinIO or any other
// S3-compatible server, using the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    return err
//	}
//	store := miniostore.NewStore(client, "rules", "prod/")
//
// Single PUTs are atomic per object, so CURRENT swaps are visible all at
// once. There is no compare-and-swap; run one publisher per prefix.
package minio
