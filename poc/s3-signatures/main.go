package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const probeKey = "_poc/signature-probe.txt"

var probeBody = []byte("live-memory signature probe\n")

func main() {
	log.Println("=== Live Memory S3 Signature POC ===")
	log.Println("Probes which signature version the endpoint accepts per operation.")
	log.Println()

	endpoint := os.Getenv("S3_ENDPOINT_URL")
	accessKey := os.Getenv("S3_ACCESS_KEY_ID")
	secretKey := os.Getenv("S3_SECRET_ACCESS_KEY")
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		bucket = "live-mem"
	}
	if endpoint == "" || accessKey == "" || secretKey == "" {
		log.Fatalf("Missing S3 configuration.\n" +
			"Please export:\n" +
			"  S3_ENDPOINT_URL      e.g. https://ecs.example.com:9021\n" +
			"  S3_ACCESS_KEY_ID\n" +
			"  S3_SECRET_ACCESS_KEY\n" +
			"  S3_BUCKET            (default live-mem)\n")
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		log.Fatalf("Invalid S3_ENDPOINT_URL %q: %v", endpoint, err)
	}
	secure := u.Scheme != "http"

	log.Printf("Endpoint: %s", u.Host)
	log.Printf("Bucket:   %s", bucket)
	log.Println()

	versions := []struct {
		name  string
		creds *credentials.Credentials
	}{
		{"SigV2", credentials.NewStaticV2(accessKey, secretKey, "")},
		{"SigV4", credentials.NewStaticV4(accessKey, secretKey, "")},
	}

	results := make(map[string]map[string]error)
	for i, v := range versions {
		log.Printf("%d. Probing with %s...", i+1, v.name)
		client, err := minio.New(u.Host, &minio.Options{
			Creds:        v.creds,
			Secure:       secure,
			BucketLookup: minio.BucketLookupPath,
		})
		if err != nil {
			log.Fatalf("Failed to create %s client: %v", v.name, err)
		}
		results[v.name] = probe(client, bucket)
		log.Println()
	}

	log.Println("3. Verdict")
	recommend(results)
}

// probe runs each operation family once against a scratch key and
// reports pass or fail. The key is removed at the end, failures leave
// at most one stray object under _poc/.
func probe(client *minio.Client, bucket string) map[string]error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := map[string]error{}

	_, err := client.PutObject(ctx, bucket, probeKey, bytes.NewReader(probeBody), int64(len(probeBody)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	report("PUT", err)
	out["PUT"] = err

	_, err = client.StatObject(ctx, bucket, probeKey, minio.StatObjectOptions{})
	report("HEAD", err)
	out["HEAD"] = err

	// GetObject is lazy, the request only fires on the first read.
	obj, err := client.GetObject(ctx, bucket, probeKey, minio.GetObjectOptions{})
	if err == nil {
		_, err = io.ReadAll(obj)
		obj.Close()
	}
	report("GET", err)
	out["GET"] = err

	_, err = client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: probeKey + ".copy"},
		minio.CopySrcOptions{Bucket: bucket, Object: probeKey})
	report("COPY", err)
	out["COPY"] = err
	_ = client.RemoveObject(ctx, bucket, probeKey+".copy", minio.RemoveObjectOptions{})

	err = nil
	for o := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: "_poc/", Recursive: true}) {
		if o.Err != nil {
			err = o.Err
			break
		}
	}
	report("LIST", err)
	out["LIST"] = err

	err = client.RemoveObject(ctx, bucket, probeKey, minio.RemoveObjectOptions{})
	report("DELETE", err)
	out["DELETE"] = err

	return out
}

func report(op string, err error) {
	if err != nil {
		log.Printf("  ✗ %-6s %v", op, err)
		return
	}
	log.Printf("  ✓ %-6s ok", op)
}

// recommend prints which client layout the endpoint needs. Dell ECS
// accepts V2 on data operations and V4 on metadata operations; a store
// that passes everything on V4 can run a single client.
func recommend(results map[string]map[string]error) {
	v2, v4 := results["SigV2"], results["SigV4"]

	ok := func(r map[string]error, ops ...string) bool {
		for _, op := range ops {
			if r[op] != nil {
				return false
			}
		}
		return true
	}

	switch {
	case ok(v4, "PUT", "GET", "COPY", "HEAD", "LIST", "DELETE"):
		log.Println("✓ Every operation passed with SigV4: a single V4 client works.")
	case ok(v2, "PUT", "GET", "COPY", "DELETE") && ok(v4, "HEAD", "LIST"):
		log.Println("✓ Dell ECS profile detected: data operations need SigV2, metadata SigV4.")
		log.Println("  Run two clients sharing the endpoint, as pkg/storage does.")
	default:
		log.Println("✗ No clean split found; inspect the failures above.")
	}
}
