package command

import (
	"errors"
	"testing"
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d
}

func TestDecodeVariants(t *testing.T) {
	d := newTestDecoder(t)

	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "move",
			raw:  `{"CommandType":"MoveTo","PawnID":7,"X":10,"Z":12}`,
			want: MoveTo{PawnID: 7, X: 10, Z: 12},
		},
		{
			name: "move negative cell",
			raw:  `{"CommandType":"MoveTo","PawnID":0,"X":-3,"Z":4}`,
			want: MoveTo{PawnID: 0, X: -3, Z: 4},
		},
		{
			name: "attack",
			raw:  `{"CommandType":"Attack","PawnID":3,"TargetID":44}`,
			want: Attack{PawnID: 3, TargetID: 44},
		},
		{
			name: "interact",
			raw:  `{"CommandType":"Interact","PawnID":3,"TargetID":9,"Interaction":"Chat"}`,
			want: Interact{PawnID: 3, TargetID: 9, Interaction: "Chat"},
		},
		{
			name: "use item with extra fields",
			raw:  `{"CommandType":"UseItem","PawnID":5,"ItemID":100,"Note":"ignored"}`,
			want: UseItem{PawnID: 5, ItemID: 100},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := d.Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Decode = %#v, want %#v", got, tc.want)
			}
			if got.Pawn() != tc.want.Pawn() || got.Kind() != tc.want.Kind() {
				t.Fatalf("Pawn/Kind mismatch: %d/%s", got.Pawn(), got.Kind())
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	d := newTestDecoder(t)

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "not json", raw: `hello`, wantErr: ErrMalformed},
		{name: "array", raw: `[1,2]`, wantErr: ErrMalformed},
		{name: "trailing garbage", raw: `{"CommandType":"MoveTo"} x`, wantErr: ErrMalformed},
		{name: "bogus type", raw: `{"CommandType":"Bogus","PawnID":1}`, wantErr: ErrUnknownCommand},
		{name: "missing type", raw: `{"PawnID":1}`, wantErr: ErrUnknownCommand},
		{name: "wrong case type", raw: `{"CommandType":"moveto","PawnID":1,"X":1,"Z":1}`, wantErr: ErrUnknownCommand},
		{name: "negative pawn", raw: `{"CommandType":"MoveTo","PawnID":-1,"X":1,"Z":1}`, wantErr: ErrInvalidPayload},
		{name: "missing pawn", raw: `{"CommandType":"Attack","TargetID":1}`, wantErr: ErrInvalidPayload},
		{name: "missing coordinate", raw: `{"CommandType":"MoveTo","PawnID":1,"X":1}`, wantErr: ErrInvalidPayload},
		{name: "fractional id", raw: `{"CommandType":"UseItem","PawnID":1,"ItemID":1.5}`, wantErr: ErrInvalidPayload},
		{name: "string id", raw: `{"CommandType":"UseItem","PawnID":"1","ItemID":2}`, wantErr: ErrInvalidPayload},
		{name: "shadowed pawn id", raw: `{"CommandType":"MoveTo","PawnID":7,"X":1,"Z":2,"pawnid":-5}`, wantErr: ErrInvalidPayload},
		{name: "shadowed item id", raw: `{"CommandType":"UseItem","PawnID":1,"ItemID":2,"itemId":3}`, wantErr: ErrInvalidPayload},
		{name: "interaction not string", raw: `{"CommandType":"Interact","PawnID":1,"TargetID":2,"Interaction":3}`, wantErr: ErrInvalidPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := d.Decode([]byte(tc.raw))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Decode err = %v, want %v", err, tc.wantErr)
			}
			if cmd != nil {
				t.Fatalf("Decode returned command %#v alongside error", cmd)
			}
		})
	}
}

func TestDecodeSubscribe(t *testing.T) {
	d := newTestDecoder(t)

	id, err := d.DecodeSubscribe([]byte(`{"command":"SUBSCRIBE_PAWN","pawn_id":7}`))
	if err != nil {
		t.Fatalf("DecodeSubscribe: %v", err)
	}
	if id != 7 {
		t.Fatalf("pawn_id = %d, want 7", id)
	}

	for _, raw := range []string{
		`{"command":"SUBSCRIBE_PAWN"}`,
		`{"command":"SUBSCRIBE_PAWN","pawn_id":-4}`,
		`{"command":"SUBSCRIBE_PAWN","pawn_id":"x"}`,
		`{"command":"SUBSCRIBE_PAWN","pawn_id":1`,
		`{"command":"SUBSCRIBE_PAWN","pawn_id":7,"PAWN_ID":-5}`,
	} {
		if _, err := d.DecodeSubscribe([]byte(raw)); err == nil {
			t.Fatalf("DecodeSubscribe(%s) accepted", raw)
		}
	}
}

func TestEncodeDecodes(t *testing.T) {
	d := newTestDecoder(t)
	for _, cmd := range []Command{
		MoveTo{PawnID: 1, X: -5, Z: 9},
		Attack{PawnID: 2, TargetID: 3},
		Interact{PawnID: 4, TargetID: 5, Interaction: "arrest"},
		UseItem{PawnID: 6, ItemID: 7},
	} {
		raw, err := Encode(cmd)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", cmd, err)
		}
		got, err := d.Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		if got != cmd {
			t.Fatalf("Decode(Encode(%#v)) = %#v", cmd, got)
		}
	}

	raw, err := EncodeSubscribe(12)
	if err != nil {
		t.Fatalf("EncodeSubscribe: %v", err)
	}
	if string(raw) != `{"command":"SUBSCRIBE_PAWN","pawn_id":12}` {
		t.Fatalf("EncodeSubscribe = %s", raw)
	}
}
