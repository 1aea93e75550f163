package exportcache

import (
	"bytes"
	"testing"
	"time"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
)

func buildCollection() *featurecollection.Collection {
	c := featurecollection.New(10, 10)
	blob := featurecollection.NewBlob(1)
	blob.AddPixel(1, 1)
	blob.AddPixel(1, 2)
	c.Add(featurecollection.NewFeature(1, blob))
	return c
}

func TestFingerprint_StableAcrossEquivalentCollections(t *testing.T) {
	a := Fingerprint(buildCollection())
	b := Fingerprint(buildCollection())
	if a != b {
		t.Fatalf("expected equal collections to fingerprint identically: %q vs %q", a, b)
	}
}

func TestGetOrSerialize_CachesOnMiss(t *testing.T) {
	cache, err := New(Config{SizeMB: 8, TTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cache.Close()

	collection := buildCollection()

	first, err := cache.GetOrSerialize(collection)
	if err != nil {
		t.Fatalf("GetOrSerialize (miss): %v", err)
	}

	cached, ok := cache.Get(Fingerprint(collection))
	if !ok {
		t.Fatalf("expected payload to be cached after first call")
	}
	if !bytes.Equal(cached, first) {
		t.Fatalf("cached payload does not match serialized output")
	}

	second, err := cache.GetOrSerialize(collection)
	if err != nil {
		t.Fatalf("GetOrSerialize (hit): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical payload on cache hit")
	}
}
