package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	SampleRate     = 16000
	Channels       = 1
	bytesPerSample = 2
	// frameBytes is one 20ms metering window at 16kHz mono s16.
	frameBytes = SampleRate / 50 * Channels * bytesPerSample
)

// bytesToDuration converts captured PCM length to time on the capture clock.
func bytesToDuration(n int) time.Duration {
	samples := n / (Channels * bytesPerSample)
	return time.Duration(samples) * time.Second / SampleRate
}

// writePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// WriteArtifact stores pcm as a timestamped WAV file under dir. A random
// suffix keeps captures finishing in the same millisecond apart.
func WriteArtifact(dir string, pcm []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	file, err := os.CreateTemp(dir, "utterance-"+timestamp+"-*.wav")
	if err != nil {
		return "", fmt.Errorf("create recording in %q: %w", dir, err)
	}
	path := file.Name()
	if err := writePCM16WAV(file, pcm, SampleRate, Channels); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write recording %q: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close recording %q: %w", path, err)
	}
	return path, nil
}

// RecordingsDir returns the default location for finished recordings.
func RecordingsDir() (string, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, clientName, "recordings"), nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
