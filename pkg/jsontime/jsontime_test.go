package jsontime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMilliRoundTrip(t *testing.T) {
	tm := time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC)
	data, err := json.Marshal(Milli(tm))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "1772444700000" {
		t.Fatalf("Marshal = %s, want Unix millis", data)
	}

	var back Milli
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(Milli(tm)) {
		t.Fatalf("round trip = %v, want %v", back, tm)
	}
}

func TestMilliComparisons(t *testing.T) {
	t1 := Milli(time.UnixMilli(1000))
	t2 := Milli(time.UnixMilli(2000))

	if !t1.Before(t2) || t2.Before(t1) {
		t.Error("Before is wrong")
	}
	if !t2.After(t1) || t1.After(t2) {
		t.Error("After is wrong")
	}
	if t1.Sub(t2) != -time.Second {
		t.Errorf("Sub = %v, want -1s", t1.Sub(t2))
	}
	if !t1.Add(time.Second).Equal(t2) {
		t.Error("Add should land on t2")
	}
	var zero Milli
	if !zero.IsZero() || t1.IsZero() {
		t.Error("IsZero is wrong")
	}
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(2500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"2.5s"` {
		t.Fatalf("Marshal = %s, want \"2.5s\"", data)
	}

	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"5s"`, 5 * time.Second},
		{`"1h30m"`, 90 * time.Minute},
		{`2500000000`, 2500 * time.Millisecond},
		{`null`, 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("Unmarshal %s: %v", tc.in, err)
		}
		if time.Duration(d) != tc.want {
			t.Errorf("Unmarshal %s = %v, want %v", tc.in, time.Duration(d), tc.want)
		}
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"nope"`), &d); err == nil {
		t.Error("expected error for invalid duration string")
	}
}
