// Package filecheck decides whether an uploaded attachment's bytes match the
// type it claims to be. Acceptance is driven by leading-byte signatures per
// declared MIME type; a deny-list of executable signatures is checked first
// and applies regardless of the declared type. SVG content gets a separate
// structural scan because vector images are markup, not a byte signature.
package filecheck

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
)

// Result is the outcome of a content validation. Reason is empty when Valid.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SVGResult is the outcome of the active-content scan.
type SVGResult struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// Stable reason prefixes callers can branch on.
const (
	ReasonBlockedExecutable = "blocked executable signature"
	ReasonSignatureMismatch = "signature does not match declared type"
	ReasonUnsupportedType   = "unsupported declared type"
	ReasonTruncated         = "file is empty or truncated"
)

// mimeSignatures maps each accepted declared MIME type to the leading-byte
// signatures that prove it. A file must match at least one.
var mimeSignatures = map[string][][]byte{
	"application/pdf": {[]byte("%PDF-")},
	"image/png":       {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	"image/jpeg":      {{0xFF, 0xD8, 0xFF}},
	"image/gif":       {[]byte("GIF87a"), []byte("GIF89a")},
}

type deniedSignature struct {
	name  string
	magic []byte
}

// deniedSignatures lists executable formats rejected outright. The order is
// irrelevant; every entry is tried.
var deniedSignatures = []deniedSignature{
	{"windows executable", []byte("MZ")},
	{"elf binary", []byte{0x7F, 0x45, 0x4C, 0x46}},
	{"java class file", []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{"mach-o binary", []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{"mach-o binary", []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{"mach-o binary", []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{"mach-o binary", []byte{0xCE, 0xFA, 0xED, 0xFE}},
	{"script with interpreter line", []byte("#!")},
}

// extensionsByMIME cross-checks the claimed file extension against the
// declared MIME type. This is an extra signal only; acceptance always comes
// from the byte signature.
var extensionsByMIME = map[string][]string{
	"application/pdf": {".pdf"},
	"image/png":       {".png"},
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/gif":       {".gif"},
	"image/webp":      {".webp"},
	"image/svg+xml":   {".svg"},
}

// Validate inspects the leading bytes of data against the declared MIME type.
func Validate(data []byte, declaredMIME string) Result {
	if len(data) == 0 {
		return Result{Reason: ReasonTruncated}
	}

	// Deny-list first: the attack is "claim a harmless type, upload a
	// dangerous payload", so this runs even for unknown declared types.
	for _, d := range deniedSignatures {
		if bytes.HasPrefix(data, d.magic) {
			return Result{Reason: ReasonBlockedExecutable + ": " + d.name}
		}
	}

	declaredMIME = normalizeMIME(declaredMIME)

	if declaredMIME == "image/svg+xml" {
		if scan := ScanSVG(data); !scan.Safe {
			return Result{Reason: scan.Reason}
		}
		return Result{Valid: true}
	}

	// WebP cannot live in the prefix table: "RIFF" alone also matches WAV
	// and AVI containers, so the form tag at bytes 8..11 has to be checked.
	if declaredMIME == "image/webp" {
		if isWebP(data) {
			return Result{Valid: true}
		}
		return Result{Reason: ReasonSignatureMismatch + ": " + declaredMIME}
	}

	sigs, ok := mimeSignatures[declaredMIME]
	if !ok {
		return Result{Reason: ReasonUnsupportedType + ": " + declaredMIME}
	}
	for _, sig := range sigs {
		if len(data) >= len(sig) && bytes.HasPrefix(data, sig) {
			return Result{Valid: true}
		}
	}
	return Result{Reason: ReasonSignatureMismatch + ": " + declaredMIME}
}

// isWebP reports whether data is a RIFF container with the WEBP form tag.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		bytes.HasPrefix(data, []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WEBP"))
}

// ExtensionMatchesMIME reports whether the filename extension is consistent
// with the declared MIME type.
func ExtensionMatchesMIME(filename, mime string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, allowed := range extensionsByMIME[normalizeMIME(mime)] {
		if ext == allowed {
			return true
		}
	}
	return false
}

var (
	scriptElement = regexp.MustCompile(`(?is)<\s*script\b`)
	eventHandler  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	scriptScheme  = regexp.MustCompile(`(?i)javascript\s*:`)
	foreignObject = regexp.MustCompile(`(?is)<\s*foreignObject\b`)
)

// ScanSVG rejects declared vector-image content carrying active-content
// constructs. The check is textual because SVG is markup.
func ScanSVG(data []byte) SVGResult {
	if len(data) == 0 {
		return SVGResult{Reason: ReasonTruncated}
	}
	text := string(data)
	switch {
	case scriptElement.MatchString(text):
		return SVGResult{Reason: "svg contains script content"}
	case eventHandler.MatchString(text):
		return SVGResult{Reason: "svg contains an inline event handler attribute"}
	case scriptScheme.MatchString(text):
		return SVGResult{Reason: "svg contains a script-scheme uri"}
	case foreignObject.MatchString(text):
		return SVGResult{Reason: "svg contains embedded foreign content"}
	}
	return SVGResult{Safe: true}
}

func normalizeMIME(mime string) string {
	mime = strings.TrimSpace(strings.ToLower(mime))
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
