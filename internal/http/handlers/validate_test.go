package handlers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFieldAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		raw     string
		want    textField
		wantErr bool
	}{
		{raw: `"42"`, want: "42"},
		{raw: `42`, want: "42"},
		{raw: `null`, want: ""},
		{raw: `""`, want: ""},
		{raw: `-1`, wantErr: true},
		{raw: `1.5`, wantErr: true},
		{raw: `true`, wantErr: true},
	}
	for _, tc := range tests {
		var got struct {
			Seed textField `json:"seed"`
		}
		err := json.Unmarshal([]byte(`{"seed":`+tc.raw+`}`), &got)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got.Seed != tc.want {
			t.Fatalf("%s: got %q, %v", tc.raw, got.Seed, err)
		}
	}
}

func TestValidatorMessages(t *testing.T) {
	v := newValidator()
	err := v.Struct(styleMixRequest{
		Model:       modelInput{Img: 1, Res: 256, FID: 1},
		RowImage:    "not-a-seed",
		ColumnImage: "7",
		Styles:      "Diagonal",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := validationMessage(err)
	for _, want := range []string{"row_image must be empty, a seed or an image id", "styles must be one of Coarse, Middle, Fine"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}

	if err := v.Struct(generateRequest{Model: modelInput{Img: 1, Res: 256}, Seed: "4294967295"}); err != nil {
		t.Fatalf("max seed rejected: %v", err)
	}
	if err := v.Struct(deleteImagesRequest{AllDocuments: true}); err != nil {
		t.Fatalf("all_documents without ids rejected: %v", err)
	}
}
