// Package language maps the language codes whisper reports to display names
// and normalizes user-supplied language settings to ISO 639-1.
package language
