// Package media stores the files media cells embed. Files live in the
// attachments folder next to the database note and cells reference them
// with an embed link.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/storage"
)

// Folder is the attachments folder, relative to the database folder.
const Folder = "attachments"

// MaxSize bounds a stored file.
const MaxSize = 10 << 20 // 10 MB

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Asset is a stored media file.
type Asset struct {
	Path  string `json:"path"`
	Embed string `json:"embed"`
	Size  int    `json:"size"`
}

// Save validates data and writes it to the attachments folder of the
// database at dbPath.
func Save(store storage.Provider, dbPath, filename string, data []byte) (*Asset, error) {
	if len(data) > MaxSize {
		return nil, invalid("file too large: %d bytes (max %d)", len(data), MaxSize)
	}
	filename = SanitizeFilename(filename)
	ext := strings.ToLower(path.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, invalid("unsupported file extension: %s (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext)
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return nil, err
	}

	p := path.Join(index.FolderOf(dbPath), Folder, filename)
	if _, err := store.Read(p); err == nil {
		return nil, fmt.Errorf("media: %s: %w", p, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("media: %w", err)
	}
	if err := store.Write(p, data); err != nil {
		return nil, fmt.Errorf("media: save %s: %w", p, err)
	}
	return &Asset{Path: p, Embed: "![[" + p + "]]", Size: len(data)}, nil
}

// Fetch returns the content of a data URI or an http(s) URL, with the
// extension its media type implies.
func Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURI(rawURL)
	}
	return fetchHTTP(ctx, rawURL)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", invalid("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", invalid("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", invalid("invalid base64 data: %v", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", invalid("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads a file with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", invalid("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", invalid("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", invalid("invalid URL: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media: download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media: download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("media: read body failed: %w", err)
	}
	if len(data) > MaxSize {
		return nil, "", invalid("file too large: exceeds %d bytes", MaxSize)
	}

	ct := resp.Header.Get("Content-Type")
	return data, mimeToExt[strings.Split(ct, ";")[0]], nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return invalid("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return invalid("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return invalid("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// FilenameFromURL extracts a file name from rawURL, falling back to a UUID
// with ext.
func FilenameFromURL(rawURL, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.New().String() + ext
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.New().String() + ext
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return invalid("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	expected := mimeToExt[strings.Split(detected, ";")[0]]

	switch ext {
	case ".jpg", ".jpeg":
		if expected != ".jpg" {
			return invalid("content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if expected != ext {
			return invalid("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("media: "+format+": %w", append(args, apperr.ErrInvalidInput)...)
}
