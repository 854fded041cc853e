package topic

import "testing"

func TestTopicBuilder(t *testing.T) {
	b := NewTopicBuilder("sovd/v1/")

	if got, want := b.Response("c-1"), "sovd/v1/response/c-1"; got != want {
		t.Errorf("Response() = %q, want %q", got, want)
	}
	if got, want := b.ResponseWildcard(), "sovd/v1/response/+"; got != want {
		t.Errorf("ResponseWildcard() = %q, want %q", got, want)
	}
}

func TestTopicBuilderCommandID(t *testing.T) {
	b := NewTopicBuilder("sovd/v1")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"sovd/v1/response/abc", "abc", true},
		{"sovd/v1/response/", "", false},
		{"sovd/v1/response/a/b", "", false},
		{"other/response/abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := b.CommandID(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CommandID(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
