// Package transcribe wraps the whisper CLI as an on-device speech-to-text
// engine. Every run is a fresh process: progress and segment lines are parsed
// from the tool's output and the finished transcript is read from the text
// file it writes next to the audio.
package transcribe
