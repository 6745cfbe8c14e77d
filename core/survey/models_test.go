package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/feeded/core"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		kind    string
		want    FormType
		wantErr bool
	}{
		{kind: "chaud", want: Hot},
		{kind: "froid", want: Cold},
		{kind: "hot", want: Hot},
		{kind: "COLD", want: Cold},
		{kind: "tiede", wantErr: true},
		{kind: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			got, err := ParseKind(tc.kind)
			if tc.wantErr {
				assert.Error(t, err)
				assert.IsType(t, &core.ValidationError{}, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLink(t *testing.T) {
	pid, sid := core.NewID(), core.NewID()
	tests := []struct {
		name    string
		link    string
		wantPID string
		wantSID string
		wantErr bool
	}{
		{name: "valid", link: pid + "-" + sid, wantPID: pid, wantSID: sid},
		{name: "no separator", link: pid, wantErr: true},
		{name: "empty program", link: "-" + sid, wantErr: true},
		{name: "empty student", link: pid + "-", wantErr: true},
		{name: "too many parts", link: pid + "-" + sid + "-x", wantErr: true},
		{name: "empty", link: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotPID, gotSID, err := ParseLink(tc.link)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantPID, gotPID)
			assert.Equal(t, tc.wantSID, gotSID)
		})
	}
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://app.feeded.fr/chaud/p1-s1", URL("https://app.feeded.fr/", Hot, "p1", "s1"))
	assert.Equal(t, "https://app.feeded.fr/froid/p1-s1", URL("https://app.feeded.fr", Cold, "p1", "s1"))
}
