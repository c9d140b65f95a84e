package main

import "testing"

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"title": "Some Video",
		"duration": 212.5,
		"formats": [
			{"format_id": "18", "acodec": "mp4a.40.2", "vcodec": "avc1", "ext": "mp4", "protocol": "https", "tbr": 500},
			{"format_id": "251", "acodec": "opus", "vcodec": "none", "ext": "webm", "protocol": "https", "abr": 160},
			{"format_id": "140", "acodec": "mp4a.40.2", "vcodec": "none", "ext": "m4a", "protocol": "https", "abr": 129}
		]
	}`)
	res, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("Expected probe result, got %v", err)
	}
	if res.Title != "Some Video" {
		t.Errorf("Expected title 'Some Video', got %q", res.Title)
	}
	if res.Duration != 212.5 {
		t.Errorf("Expected duration 212.5, got %v", res.Duration)
	}
	if res.FormatID != "251" {
		t.Errorf("Expected format 251, got %q", res.FormatID)
	}
}

func TestParseProbeOutputErrors(t *testing.T) {
	for _, data := range []string{`not json`, `{"title": "  "}`, `{}`} {
		if _, err := parseProbeOutput([]byte(data)); err == nil {
			t.Errorf("Expected error for %q, got nil", data)
		}
	}
}

func TestBestAudioFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats []ytdlpFormat
		want    string
	}{
		{"empty", nil, ""},
		{
			"audio only preferred over muxed",
			[]ytdlpFormat{
				{FormatID: "22", ACodec: "mp4a", VCodec: "avc1", Ext: "mp4", Protocol: "https", TBR: 1000},
				{FormatID: "140", ACodec: "mp4a", VCodec: "none", Ext: "m4a", Protocol: "https", ABR: 128},
			},
			"140",
		},
		{
			"muxed fallback",
			[]ytdlpFormat{
				{FormatID: "sb0", ACodec: "none", VCodec: "none", Ext: "mhtml"},
				{FormatID: "18", ACodec: "mp4a", VCodec: "avc1", Ext: "mp4", Protocol: "https"},
			},
			"18",
		},
		{
			"no audio anywhere",
			[]ytdlpFormat{{FormatID: "137", ACodec: "none", VCodec: "avc1"}},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bestAudioFormat(tt.formats); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatSelector(t *testing.T) {
	if got := formatSelector(""); got != "bestaudio/best" {
		t.Errorf("Expected default selector, got %q", got)
	}
	if got := formatSelector("140"); got != "140/bestaudio/best" {
		t.Errorf("Expected '140/bestaudio/best', got %q", got)
	}
}
