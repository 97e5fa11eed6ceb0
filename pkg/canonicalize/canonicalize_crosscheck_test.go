package canonicalize

import (
	"encoding/json"
	"testing"

	webpkijcs "github.com/gowebpki/jcs"
)

// crosscheck verifies our own marshalRecursive agrees with an independent
// RFC 8785 implementation, so a future change here can't silently drift
// from the spec without a package test noticing.
func crosscheck(t *testing.T, v interface{}) {
	t.Helper()

	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	want, err := webpkijcs.Transform(raw)
	if err != nil {
		t.Fatalf("gowebpki/jcs.Transform failed: %v", err)
	}

	got, err := JCS(v)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(got) != string(want) {
		t.Errorf("JCS disagrees with gowebpki/jcs:\n got:  %s\n want: %s", got, want)
	}
}

func TestJCS_CrosscheckFlatObject(t *testing.T) {
	crosscheck(t, map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	})
}

func TestJCS_CrosscheckNestedObjectsAndArrays(t *testing.T) {
	crosscheck(t, map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a":    1,
		"list": []interface{}{3, 1, 2, "x"},
	})
}

func TestJCS_CrosscheckUnicodeAndEscaping(t *testing.T) {
	crosscheck(t, map[string]interface{}{
		"greeting": "héllo <world> & \"friends\"",
		"emoji":    "🎉",
	})
}

func TestJCS_CrosscheckFactShape(t *testing.T) {
	crosscheck(t, map[string]interface{}{
		"type": "Project.Member",
		"predecessors": map[string]interface{}{
			"project": []interface{}{map[string]interface{}{"type": "Project", "hash": "p1"}},
			"user":    []interface{}{map[string]interface{}{"type": "User", "hash": "u1"}},
		},
		"fields": map[string]interface{}{
			"role":  "admin",
			"since": 1700000000,
		},
	})
}
