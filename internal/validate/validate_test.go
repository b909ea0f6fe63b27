package validate

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"therapist@example.com", true},
		{"a.b+tag@sub.example.co.uk", true},
		{"no-at-sign", false},
		{"@example.com", false},
		{"user@", false},
		{"user@domain", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"+1 555 123 4567", true},
		{"555-123-4567", true},
		{"(02) 9876 5432", false}, // must start with digit or +
		{"02 9876 5432", true},
		{"12345", false}, // too short
		{"not a number", false},
	}
	for _, tt := range tests {
		if got := Phone(tt.in); got != tt.want {
			t.Errorf("Phone(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", "session.mp3", false},
		{"spaces ok", "monday session.wav", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", `..\boot.ini`, true},
		{"hidden", ".env", true},
		{"control char", "a\x00b.mp3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeFilename(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("SafeFilename(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestAllowedExtension(t *testing.T) {
	allowed := []string{".mp3", ".wav", ".m4a"}
	tests := []struct {
		in   string
		want bool
	}{
		{"a.mp3", true},
		{"a.MP3", true},
		{"a.wav", true},
		{"a.flac", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := AllowedExtension(tt.in, allowed); got != tt.want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAudioHeader(t *testing.T) {
	tests := []struct {
		name    string
		head    []byte
		want    string
		wantErr bool
	}{
		{"wav", []byte("RIFF....WAVE"), "wav", false},
		{"mp3 id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), "mp3", false},
		{"mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}, "mp3", false},
		{"ogg", []byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00"), "ogg", false},
		{"flac", []byte("fLaC\x00\x00\x00\x22\x00\x00\x00\x00"), "flac", false},
		{"m4a", []byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}, "m4a", false},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0, 0, 0, 0, 0, 0, 0, 0}, "webm", false},
		{"text file", []byte("hello world!"), "", true},
		{"too short", []byte{0xFF}, "", true},
		{"empty", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AudioHeader(tt.head)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AudioHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("AudioHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}
