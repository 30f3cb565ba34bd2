package oauth

import (
	"reflect"
	"testing"
)

func TestValues_EncodeQueryOrder(t *testing.T) {
	v := NewValues()
	v.Set("response_type", "code")
	v.Set("client_id", "my client")
	v.Add("audience", "a")
	v.Add("audience", "b")

	got := v.EncodeQuery()
	want := "response_type=code&client_id=my%20client&audience=a&audience=b"
	if got != want {
		t.Errorf("EncodeQuery() = %q, want %q", got, want)
	}
}

func TestValues_EncodeForm_SpaceAsPlus(t *testing.T) {
	v := NewValues()
	v.Set("scope", "openid profile")

	if got, want := v.EncodeForm(), "scope=openid+profile"; got != want {
		t.Errorf("EncodeForm() = %q, want %q", got, want)
	}
	if got, want := v.EncodeQuery(), "scope=openid%20profile"; got != want {
		t.Errorf("EncodeQuery() = %q, want %q", got, want)
	}
}

func TestValues_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		add  [][2]string
	}{
		{
			name: "simple",
			add:  [][2]string{{"code", "XYZ"}, {"state", "abc123"}},
		},
		{
			name: "repeated keys keep order",
			add:  [][2]string{{"k", "1"}, {"other", "x"}, {"k", "2"}, {"k", "3"}},
		},
		{
			name: "reserved characters",
			add:  [][2]string{{"redirect_uri", "http://127.0.0.1:8080/callback?x=1&y=2"}, {"note", "a+b c/d=e"}},
		},
		{
			name: "empty value",
			add:  [][2]string{{"flag", ""}, {"s", "v"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValues()
			for _, kv := range tc.add {
				v.Add(kv[0], kv[1])
			}

			query, err := ParseQuery(v.EncodeQuery())
			if err != nil {
				t.Fatalf("ParseQuery() failed: %v", err)
			}
			form, err := ParseForm(v.EncodeForm())
			if err != nil {
				t.Fatalf("ParseForm() failed: %v", err)
			}

			for _, parsed := range []*Values{query, form} {
				if !reflect.DeepEqual(parsed.Keys(), v.Keys()) {
					t.Errorf("keys after round trip = %v, want %v", parsed.Keys(), v.Keys())
				}
				for _, k := range v.Keys() {
					if !reflect.DeepEqual(parsed.Values(k), v.Values(k)) {
						t.Errorf("values for %q after round trip = %v, want %v", k, parsed.Values(k), v.Values(k))
					}
				}
			}
		})
	}
}

func TestParseQuery_PlusIsLiteral(t *testing.T) {
	v, err := ParseQuery("note=a+b")
	if err != nil {
		t.Fatalf("ParseQuery() failed: %v", err)
	}
	if got := v.Get("note"); got != "a+b" {
		t.Errorf("query plus decoded to %q, want literal \"a+b\"", got)
	}

	f, err := ParseForm("note=a+b")
	if err != nil {
		t.Fatalf("ParseForm() failed: %v", err)
	}
	if got := f.Get("note"); got != "a b" {
		t.Errorf("form plus decoded to %q, want \"a b\"", got)
	}
}

func TestParseQuery_InvalidEscape(t *testing.T) {
	for _, raw := range []string{"k=%G1", "k=%2", "%ZZ=v"} {
		if _, err := ParseQuery(raw); err == nil {
			t.Errorf("ParseQuery(%q) succeeded, want error", raw)
		}
	}
}

func TestValues_SetReplacesKeepingPosition(t *testing.T) {
	v := NewValues()
	v.Add("a", "1")
	v.Add("b", "2")
	v.Set("a", "3")

	if got, want := v.EncodeQuery(), "a=3&b=2"; got != want {
		t.Errorf("EncodeQuery() = %q, want %q", got, want)
	}
}

func TestValues_JSONRoundTrip(t *testing.T) {
	v := NewValues()
	v.Add("z", "1")
	v.Add("a", "2")
	v.Add("z", "3")

	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() failed: %v", err)
	}

	restored := NewValues()
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() failed: %v", err)
	}

	if !reflect.DeepEqual(restored.Keys(), v.Keys()) {
		t.Errorf("keys after JSON round trip = %v, want %v", restored.Keys(), v.Keys())
	}
	if !reflect.DeepEqual(restored.Values("z"), []string{"1", "3"}) {
		t.Errorf("values for z = %v, want [1 3]", restored.Values("z"))
	}
}
