package restoreblob

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/restorepoint/vmcr/internal/errdefs"
)

// header mirrors the byte layout in spec §6, little-endian host order.
type header struct {
	RestoreWallMS int64
	RestoreMonoNS int64
	NFlags        int32
	NProps        int32
	EnvBytes      int32
}

const headerSize = 8 + 8 + 4 + 4 + 4

// Serialize lays out a Blob exactly as §3/§6 describe: header, then NUL
// terminated flag strings, then NUL-terminated "k=v" properties, then the
// environment block, then the NUL-terminated program-arguments string. A
// single write error anywhere aborts the whole blob (§4.2 "Write path") —
// Serialize builds the full buffer in memory so a short write downstream
// can never leave a partial blob on disk.
func Serialize(b Blob) ([]byte, error) {
	var envBlock bytes.Buffer
	for _, e := range b.Env {
		envBlock.WriteString(e)
		envBlock.WriteByte(0)
	}

	hdr := header{
		RestoreWallMS: b.RestoreWallMS,
		RestoreMonoNS: b.RestoreMonoNS,
		NFlags:        int32(len(b.Flags)),
		NProps:        int32(len(b.Properties)),
		EnvBytes:      int32(envBlock.Len()),
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("restoreblob: encode header: %w", err)
	}
	for _, f := range b.Flags {
		buf.WriteString(f)
		buf.WriteByte(0)
	}
	for _, p := range b.Properties {
		buf.WriteString(p)
		buf.WriteByte(0)
	}
	buf.Write(envBlock.Bytes())
	buf.WriteString(b.Args)
	buf.WriteByte(0)

	return buf.Bytes(), nil
}

// Parse decodes a buffer produced by Serialize, reading strictly in the
// order written (§4.2 "Read path"). A malformed buffer returns an
// errdefs.DataLoss error so callers can apply the best-effort
// RESTORE_PARAM_PARSE policy from §7 instead of failing restore outright.
func Parse(buf []byte) (Blob, error) {
	if len(buf) < headerSize {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: buffer too small for header: %d bytes", len(buf)))
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: decode header: %w", err))
	}
	if hdr.NFlags < 0 || hdr.NProps < 0 || hdr.EnvBytes < 0 {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: negative count in header"))
	}

	rest := buf[headerSize:]

	flags, rest, err := readNulStrings(rest, int(hdr.NFlags))
	if err != nil {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: read flags: %w", err))
	}
	props, rest, err := readNulStrings(rest, int(hdr.NProps))
	if err != nil {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: read properties: %w", err))
	}
	if int(hdr.EnvBytes) > len(rest) {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: env block truncated"))
	}
	envBlock := rest[:hdr.EnvBytes]
	rest = rest[hdr.EnvBytes:]
	env := splitNulBlock(envBlock)

	args, _, err := readCString(rest)
	if err != nil {
		return Blob{}, errdefs.DataLoss(fmt.Errorf("restoreblob: read args: %w", err))
	}

	return Blob{
		RestoreWallMS: hdr.RestoreWallMS,
		RestoreMonoNS: hdr.RestoreMonoNS,
		Flags:         flags,
		Properties:    props,
		Env:           env,
		Args:          args,
	}, nil
}

func readCString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("missing NUL terminator")
	}
	return string(b[:i]), b[i+1:], nil
}

func readNulStrings(b []byte, n int) ([]string, []byte, error) {
	if n == 0 {
		return nil, b, nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, rest, err := readCString(b)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, s)
		b = rest
	}
	return out, b, nil
}

func splitNulBlock(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}
