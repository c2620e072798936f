package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = "1\r\n00:00:01,000 --> 00:00:02,500\r\nHello\r\n\r\n2\r\n0:01:02,5 --> 0:01:04,250\r\nTwo\r\nlines\r\n"

func TestSRTToVTT(t *testing.T) {
	got, err := ToVTT(sampleSRT, "")
	require.NoError(t, err)
	want := "WEBVTT\n\n" +
		"00:00:01.000 --> 00:00:02.500\nHello\n\n" +
		"00:01:02.500 --> 00:01:04.250\nTwo\nlines\n\n"
	assert.Equal(t, want, got)
}

func TestASSToVTT(t *testing.T) {
	script := `[Script Info]
Title: sample

[V4+ Styles]
Format: Name, Fontname
Style: Default,Arial

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:03.50,Default,,0,0,0,,{\i1}Hello{\i0}\Nworld
Dialogue: 0,0:00:04.00,0:00:05.00,Default,,0,0,0,,Wait, what?
Comment: 0,0:00:06.00,0:00:07.00,Default,,0,0,0,,ignored
`
	got, err := ToVTT(script, "ass")
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n\n"+
		"00:00:01.000 --> 00:00:03.500\nHello\nworld\n\n"+
		"00:00:04.000 --> 00:00:05.000\nWait, what?\n\n", got)
}

func TestASSWithoutDialogue(t *testing.T) {
	_, err := ASSToVTT("[Script Info]\n[Events]\n")
	assert.Error(t, err)
}

func TestVTTPassThrough(t *testing.T) {
	in := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n"
	got, err := ToVTT(in, "srt")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestUnknownFormat(t *testing.T) {
	_, err := ToVTT("just some words", "")
	assert.Error(t, err)
}

func TestDecodeText(t *testing.T) {
	t.Run("utf8 bom", func(t *testing.T) {
		got, err := DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, "Xin chào"...))
		require.NoError(t, err)
		assert.Equal(t, "Xin chào", got)
	})
	t.Run("utf16le", func(t *testing.T) {
		got, err := DecodeText([]byte{0xFF, 0xFE, 'h', 0, 'i', 0})
		require.NoError(t, err)
		assert.Equal(t, "hi", got)
	})
	t.Run("utf16be", func(t *testing.T) {
		got, err := DecodeText([]byte{0xFE, 0xFF, 0, 'o', 0, 'k'})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	})
	t.Run("windows-1252", func(t *testing.T) {
		got, err := DecodeText([]byte("caf\xe9"))
		require.NoError(t, err)
		assert.Equal(t, "café", got)
	})
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "vtt", DetectFormat("\nWEBVTT\n"))
	assert.Equal(t, "ass", DetectFormat("[Script Info]\nTitle: x"))
	assert.Equal(t, "srt", DetectFormat(sampleSRT))
	assert.Equal(t, "", DetectFormat("nothing"))
}
