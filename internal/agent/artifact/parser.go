// Package artifact implements the streaming nested-tar artifact parser
// (§4.3). An artifact is an outer tar whose entries are, in order:
// version, manifest, an optional detached manifest.sig, header.tar[.gz],
// and one or more data/####.tar[.gz] entries carrying per-payload data.
//
// The deployment service client delivers bytes as they arrive over HTTP
// (internal/agent/httpclient.EventCallback), a push model, while
// archive/tar needs a blocking io.Reader to pull from. Parser bridges the
// two with an io.Pipe: DataReceived events write into the pipe, and a
// dedicated goroutine runs the tar decode against the pipe's read side.
// io.Pipe has no internal buffer — a Write blocks until a Read consumes
// it — so this bridge enforces the same backpressure the original
// hand-rolled state machine got from its fixed-size ring buffer, without
// reimplementing tar decoding by hand.
package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/edgeupdate/agent/internal/agent/agenterrors"
	"github.com/edgeupdate/agent/internal/agent/cryptobackend"
	"github.com/edgeupdate/agent/internal/agent/httpclient"
	"github.com/edgeupdate/agent/internal/agent/module"
)

const (
	artifactVersion      = "3"
	defaultMaxEntrySize  = 64 << 20 // 64MiB; "tens of MB" per the platform-configured guidance
	defaultChunkReadSize = 32 * 1024
)

// State is one step of the parser's state machine.
type State int

const (
	StateInit State = iota
	StateVersion
	StateManifest
	StateManifestSig
	StateHeader
	StateData
	StateDone
	StateFail
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateVersion:
		return "VERSION"
	case StateManifest:
		return "MANIFEST"
	case StateManifestSig:
		return "MANIFEST_SIG"
	case StateHeader:
		return "HEADER"
	case StateData:
		return "DATA"
	case StateDone:
		return "DONE"
	case StateFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// HeaderInfo is the metadata captured from header.tar's header-info file.
type HeaderInfo struct {
	ArtifactName     string
	Payloads         []string
	ArtifactProvides map[string]string
	ArtifactDepends  map[string]string
}

type headerInfoJSON struct {
	Payloads []struct {
		Type string `json:"type"`
	} `json:"payloads"`
	ArtifactProvides map[string]string `json:"artifact_provides"`
	ArtifactDepends  map[string]string `json:"artifact_depends"`
	ArtifactName     string             `json:"artifact_name"`
}

// Options configures a Parser for a single artifact download.
type Options struct {
	// DeviceType is this device's configured type, checked against the
	// artifact's device_types_compatible list.
	DeviceType string
	// DeviceTypesCompatible is the deployment descriptor's compatible
	// list, supplied by the deployment state machine.
	DeviceTypesCompatible []string
	// MaxEntrySize bounds any single tar entry's size; entries larger
	// than this are rejected rather than read into memory. Zero means
	// defaultMaxEntrySize.
	MaxEntrySize int64
	// Crypto verifies a detached manifest.sig, if present. Nil skips
	// signature verification entirely.
	Crypto cryptobackend.Backend
	// Modules dispatches payload chunks to the registered update module
	// for each payload's type.
	Modules *module.Registry
	// ProvidesDependsEnabled turns on the artifact_depends check against
	// PersistedProvides.
	ProvidesDependsEnabled bool
	// PersistedProvides is the device's persisted provides set, used
	// only when ProvidesDependsEnabled.
	PersistedProvides map[string]string
	// FullParseArtifact additionally captures the raw bytes of each
	// headers/####/* file for inspection; when false those entries are
	// read and discarded without allocation beyond the read buffer.
	FullParseArtifact bool
}

func (o Options) maxEntrySize() int64 {
	if o.MaxEntrySize > 0 {
		return o.MaxEntrySize
	}
	return defaultMaxEntrySize
}

// Parser incrementally parses one artifact download. It is single-use:
// construct a new Parser per download with NewParser.
type Parser struct {
	opts Options
	pw   *io.PipeWriter
	done chan error

	mu          sync.Mutex
	state       State
	header      *HeaderInfo
	manifest    map[string]string
	headerFiles map[string][]byte
}

// NewParser starts a Parser's background decode goroutine and returns
// immediately. Feed it bytes via EventCallback as they arrive from the
// HTTP client, then call Wait for the final result.
func NewParser(ctx context.Context, opts Options) *Parser {
	pr, pw := io.Pipe()
	p := &Parser{
		opts:        opts,
		pw:          pw,
		done:        make(chan error, 1),
		state:       StateInit,
		headerFiles: map[string][]byte{},
	}
	go func() {
		err := p.parse(ctx, pr)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		p.done <- err
	}()
	return p
}

// EventCallback returns the httpclient.EventCallback that feeds this
// parser. Intended to be passed directly to Client.DownloadArtifact.
func (p *Parser) EventCallback() httpclient.EventCallback {
	return func(_ context.Context, info httpclient.EventInfo) {
		switch info.Event {
		case httpclient.DataReceived:
			// A write error here means the parse goroutine already
			// exited (success or failure); further writes are discarded
			// since Wait has the authoritative result.
			_, _ = p.pw.Write(info.Data)
		case httpclient.Disconnected:
			_ = p.pw.Close()
		case httpclient.Error:
			_ = p.pw.CloseWithError(info.Err)
		}
	}
}

// Wait blocks until the download has been fully parsed (or failed),
// returning the terminal error, if any.
func (p *Parser) Wait(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the parser's current state.
func (p *Parser) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Header returns the captured header-info metadata. Valid only after the
// HEADER state has been reached successfully.
func (p *Parser) Header() *HeaderInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header
}

func (p *Parser) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Parser) fail(err error) error {
	p.setState(StateFail)
	return err
}

func (p *Parser) parse(ctx context.Context, r io.Reader) error {
	tr := tar.NewReader(r)

	hdr, err := tr.Next()
	if err != nil {
		return p.fail(fmt.Errorf("%w: reading version entry: %w", agenterrors.ErrMalformedResponse, err))
	}
	if !strings.HasPrefix(hdr.Name, "version") {
		return p.fail(fmt.Errorf("%w: expected version entry, got %q", agenterrors.ErrMalformedResponse, hdr.Name))
	}
	p.setState(StateVersion)
	versionBytes, err := p.readEntry(tr, hdr)
	if err != nil {
		return p.fail(err)
	}
	if strings.TrimSpace(string(versionBytes)) != artifactVersion {
		return p.fail(fmt.Errorf("%w: artifact version %q, expected %q", agenterrors.ErrUnsupported, strings.TrimSpace(string(versionBytes)), artifactVersion))
	}

	hdr, err = tr.Next()
	if err != nil {
		return p.fail(fmt.Errorf("%w: reading manifest entry: %w", agenterrors.ErrMalformedResponse, err))
	}
	if !strings.HasPrefix(hdr.Name, "manifest") || strings.HasPrefix(hdr.Name, "manifest.sig") {
		return p.fail(fmt.Errorf("%w: expected manifest entry, got %q", agenterrors.ErrMalformedResponse, hdr.Name))
	}
	p.setState(StateManifest)
	manifestBytes, err := p.readEntry(tr, hdr)
	if err != nil {
		return p.fail(err)
	}
	manifest, err := parseManifest(manifestBytes)
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", agenterrors.ErrMalformedResponse, err))
	}
	p.manifest = manifest

	hdr, err = tr.Next()
	if err != nil {
		return p.fail(fmt.Errorf("%w: reading header entry: %w", agenterrors.ErrMalformedResponse, err))
	}
	if strings.HasPrefix(hdr.Name, "manifest.sig") {
		p.setState(StateManifestSig)
		sigBytes, err := p.readEntry(tr, hdr)
		if err != nil {
			return p.fail(err)
		}
		if p.opts.Crypto != nil {
			pub, err := p.opts.Crypto.PublicKeyPEM(ctx)
			if err != nil {
				return p.fail(fmt.Errorf("%w: reading public key for manifest verification: %w", agenterrors.ErrFailure, err))
			}
			if err := p.opts.Crypto.Verify(ctx, pub, manifestBytes, sigBytes); err != nil {
				return p.fail(fmt.Errorf("%w: manifest signature verification failed: %w", agenterrors.ErrIntegrityFailure, err))
			}
		}
		hdr, err = tr.Next()
		if err != nil {
			return p.fail(fmt.Errorf("%w: reading header entry: %w", agenterrors.ErrMalformedResponse, err))
		}
	}

	if !strings.HasPrefix(hdr.Name, "header.tar") {
		return p.fail(fmt.Errorf("%w: expected header.tar entry, got %q", agenterrors.ErrMalformedResponse, hdr.Name))
	}
	p.setState(StateHeader)
	headerInfo, err := p.parseHeader(tr, hdr)
	if err != nil {
		return p.fail(err)
	}
	p.header = headerInfo

	if !containsString(p.opts.DeviceTypesCompatible, p.opts.DeviceType) {
		return p.fail(fmt.Errorf("%w: device type %q not in compatible list %v", agenterrors.ErrIncompatibleArtifact, p.opts.DeviceType, p.opts.DeviceTypesCompatible))
	}

	if p.opts.ProvidesDependsEnabled {
		for key, want := range headerInfo.ArtifactDepends {
			got, ok := p.opts.PersistedProvides[key]
			if !ok || got != want {
				return p.fail(fmt.Errorf("%w: depends %q=%q not satisfied by persisted provides", agenterrors.ErrUnmetDependency, key, want))
			}
		}
	}

	p.setState(StateData)
	for {
		hdr, err = tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.fail(fmt.Errorf("%w: reading data entry: %w", agenterrors.ErrMalformedResponse, err))
		}
		if !strings.HasPrefix(hdr.Name, "data/") {
			return p.fail(fmt.Errorf("%w: unexpected entry %q in data section", agenterrors.ErrMalformedResponse, hdr.Name))
		}
		idx, err := parsePayloadIndex(hdr.Name)
		if err != nil {
			return p.fail(err)
		}
		if idx < 0 || idx >= len(headerInfo.Payloads) {
			return p.fail(fmt.Errorf("%w: data entry %q has no matching payload header", agenterrors.ErrMalformedResponse, hdr.Name))
		}
		if err := p.parseDataEntry(ctx, tr, hdr, headerInfo.Payloads[idx]); err != nil {
			return p.fail(err)
		}
	}

	p.setState(StateDone)
	return nil
}

func (p *Parser) readEntry(tr *tar.Reader, hdr *tar.Header) ([]byte, error) {
	if hdr.Size > p.opts.maxEntrySize() {
		return nil, fmt.Errorf("%w: entry %q size %d exceeds max %d", agenterrors.ErrOutOfMemory, hdr.Name, hdr.Size, p.opts.maxEntrySize())
	}
	buf := make([]byte, hdr.Size)
	if _, err := io.ReadFull(tr, buf); err != nil {
		return nil, fmt.Errorf("%w: reading entry %q: %w", agenterrors.ErrMalformedResponse, hdr.Name, err)
	}
	if err := p.verifyChecksum(hdr.Name, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Parser) verifyChecksum(name string, data []byte) error {
	want, ok := p.manifest[name]
	if !ok {
		return nil
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != want {
		return fmt.Errorf("%w: checksum mismatch for %q", agenterrors.ErrIntegrityFailure, name)
	}
	return nil
}

var manifestLineSep = regexp.MustCompile(`[ \t]+`)

// parseManifest parses newline-separated "<hex-sha256>  <filename>" lines.
func parseManifest(data []byte) (map[string]string, error) {
	out := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := manifestLineSep.Split(line, 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		out[fields[1]] = fields[0]
	}
	return out, nil
}

func (p *Parser) parseHeader(tr *tar.Reader, hdr *tar.Header) (*HeaderInfo, error) {
	data, err := p.readEntry(tr, hdr)
	if err != nil {
		return nil, err
	}

	inner, err := decompressingReader(hdr.Name, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing %q: %w", agenterrors.ErrMalformedResponse, hdr.Name, err)
	}
	innerTr := tar.NewReader(inner)

	info := &HeaderInfo{}
	for {
		ihdr, err := innerTr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading header.tar entry: %w", agenterrors.ErrMalformedResponse, err)
		}

		if ihdr.Name == "header-info" {
			raw, err := io.ReadAll(innerTr)
			if err != nil {
				return nil, fmt.Errorf("%w: reading header-info: %w", agenterrors.ErrMalformedResponse, err)
			}
			var hi headerInfoJSON
			if err := json.Unmarshal(raw, &hi); err != nil {
				return nil, fmt.Errorf("%w: decoding header-info: %w", agenterrors.ErrMalformedResponse, err)
			}
			info.ArtifactName = hi.ArtifactName
			info.ArtifactProvides = hi.ArtifactProvides
			info.ArtifactDepends = hi.ArtifactDepends
			for _, payload := range hi.Payloads {
				info.Payloads = append(info.Payloads, payload.Type)
			}
			continue
		}

		if p.opts.FullParseArtifact && strings.HasPrefix(ihdr.Name, "headers/") {
			raw, err := io.ReadAll(innerTr)
			if err != nil {
				return nil, fmt.Errorf("%w: reading %q: %w", agenterrors.ErrMalformedResponse, ihdr.Name, err)
			}
			p.headerFiles[ihdr.Name] = raw
			continue
		}

		if _, err := io.Copy(io.Discard, innerTr); err != nil {
			return nil, fmt.Errorf("%w: skipping %q: %w", agenterrors.ErrMalformedResponse, ihdr.Name, err)
		}
	}

	if len(info.Payloads) == 0 {
		return nil, fmt.Errorf("%w: header-info missing payloads", agenterrors.ErrMalformedResponse)
	}
	return info, nil
}

var dataEntryRE = regexp.MustCompile(`^data/(\d+)\.tar(\.gz)?$`)

func parsePayloadIndex(name string) (int, error) {
	m := dataEntryRE.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: unrecognized data entry name %q", agenterrors.ErrUnsupported, name)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid data entry index in %q", agenterrors.ErrMalformedResponse, name)
	}
	return idx, nil
}

func (p *Parser) parseDataEntry(ctx context.Context, tr *tar.Reader, hdr *tar.Header, payloadType string) error {
	limited := io.LimitReader(tr, hdr.Size)
	inner, err := decompressingReader(hdr.Name, limited)
	if err != nil {
		return fmt.Errorf("%w: decompressing %q: %w", agenterrors.ErrMalformedResponse, hdr.Name, err)
	}
	innerTr := tar.NewReader(inner)

	for {
		ihdr, err := innerTr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: reading %q entry: %w", agenterrors.ErrMalformedResponse, hdr.Name, err)
		}

		handle, err := p.opts.Modules.BeginPayload(payloadType)
		if err != nil {
			return err
		}

		manifestKey := hdr.Name + "/" + ihdr.Name
		hasher := sha256.New()
		buf := make([]byte, defaultChunkReadSize)
		var offset int64
		for {
			n, rerr := innerTr.Read(buf)
			if n > 0 {
				hasher.Write(buf[:n])
				if ferr := handle.DownloadArtifactFlash(buf[:n], offset, ihdr.Size, ihdr.Name); ferr != nil {
					return ferr
				}
				offset += int64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return fmt.Errorf("%w: reading payload data %q: %w", agenterrors.ErrMalformedResponse, ihdr.Name, rerr)
			}
		}

		if want, ok := p.manifest[manifestKey]; ok {
			got := hex.EncodeToString(hasher.Sum(nil))
			if got != want {
				return fmt.Errorf("%w: checksum mismatch for %q", agenterrors.ErrIntegrityFailure, manifestKey)
			}
		}

		if err := handle.EndOfPayload(ctx); err != nil {
			return err
		}
	}
	return nil
}

func decompressingReader(name string, r io.Reader) (io.Reader, error) {
	if strings.HasSuffix(name, ".gz") {
		return gzip.NewReader(r)
	}
	return r, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
