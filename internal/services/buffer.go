package services

import "bytes"

// yt-dlp can print megabytes of progress; stderr is only kept for error classification.
const maxCapturedOutput = 32 << 20

// limitedBuffer discards writes beyond maxCapturedOutput.
type limitedBuffer struct {
	buf bytes.Buffer
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxCapturedOutput - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) Bytes() []byte {
	return l.buf.Bytes()
}
