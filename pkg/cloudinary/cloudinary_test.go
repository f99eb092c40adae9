package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicID(t *testing.T) {
	at := time.Unix(1700000000, 0)

	require.Equal(t, "assessment-12-Mia-s-reading-1700000000", buildPublicID("assessment-12", "../Mia's reading.webm", at))
	require.Equal(t, "recording-1700000000", buildPublicID("", "???.mp3", at))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
	require.False(t, Config{CloudName: "demo", APIKey: "k"}.Configured())
}
