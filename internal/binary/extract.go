package binary

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zesbe/ccswitch/internal/platform"
)

// ErrArchiveFormat indicates a malformed, truncated, or unsupported archive.
var ErrArchiveFormat = errors.New("archive format error")

// extractExecutable pulls the single file named exeName out of a release
// archive and writes it to destPath. The archive containers are parsed by
// hand; only the byte-stream decompression (gzip, raw deflate) comes from
// the standard library. Unmatched tar entries are skipped without buffering
// their contents.
//
// The payload is assembled in a temporary file and renamed into place only
// once it is complete, so destPath never holds a half-written executable.
func extractExecutable(archivePath, destPath, exeName string, kind platform.ArchiveKind) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".partial"
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	switch kind {
	case platform.ArchiveTarGz:
		err = extractFromTarGz(archivePath, tmpFile, exeName)
	case platform.ArchiveZip:
		err = extractFromZip(archivePath, tmpFile, exeName)
	default:
		err = fmt.Errorf("%w: unknown archive kind %q", ErrArchiveFormat, kind)
	}
	if err != nil {
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0o755); err != nil {
			return fmt.Errorf("set executable: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	cleanupNeeded = false
	return nil
}

const tarBlockSize = 512

// extractFromTarGz walks 512-byte tar header blocks in the gzip stream.
// Bytes 0-99 of a header hold the NUL-terminated entry name, bytes 124-135
// the ASCII-octal size; an all-zero header block ends the archive.
func extractFromTarGz(archivePath string, dest io.Writer, exeName string) error {
	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	gz, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveFormat, err)
	}
	defer gz.Close()

	header := make([]byte, tarBlockSize)
	for {
		if _, err := io.ReadFull(gz, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fmt.Errorf("%w: %s not found in archive", ErrArchiveFormat, exeName)
			}
			return fmt.Errorf("%w: read tar header: %v", ErrArchiveFormat, err)
		}

		if isZeroBlock(header) {
			return fmt.Errorf("%w: %s not found in archive", ErrArchiveFormat, exeName)
		}

		name := tarString(header[0:100])
		size, err := tarOctal(header[124:136])
		if err != nil {
			return fmt.Errorf("%w: bad size for %q: %v", ErrArchiveFormat, name, err)
		}
		typeflag := header[156]

		regular := typeflag == '0' || typeflag == 0
		if regular && filepath.Base(name) == exeName {
			if _, err := io.CopyN(dest, gz, size); err != nil {
				return fmt.Errorf("%w: copy %q: %v", ErrArchiveFormat, name, err)
			}
			return nil
		}

		// Skip the entry's data plus padding to the next 512-byte
		// boundary without buffering it.
		padded := (size + tarBlockSize - 1) / tarBlockSize * tarBlockSize
		if _, err := io.CopyN(io.Discard, gz, padded); err != nil {
			return fmt.Errorf("%w: skip %q: %v", ErrArchiveFormat, name, err)
		}
	}
}

func isZeroBlock(block []byte) bool {
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}

// tarString reads a NUL-terminated field.
func tarString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// tarOctal parses an ASCII-octal numeric field, tolerating NUL and space
// padding.
func tarOctal(field []byte) (int64, error) {
	s := strings.Trim(string(bytes.Trim(field, "\x00")), " ")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size")
	}
	return n, nil
}

// Zip structure signatures and fixed sizes.
const (
	zipEOCDSignature    = 0x06054b50
	zipCentralSignature = 0x02014b50
	zipLocalSignature   = 0x04034b50

	zipEOCDFixedSize    = 22
	zipCentralFixedSize = 46
	zipLocalFixedSize   = 30

	// The EOCD comment length field is 16 bits, so the EOCD record starts
	// at most 22+65535 bytes from the end of the file.
	zipMaxEOCDScan = zipEOCDFixedSize + 0xFFFF
)

// extractFromZip locates exeName via the central directory and inflates (or
// copies) its data. The End-Of-Central-Directory record is found by scanning
// backward from the end of the buffer, which tolerates a trailing archive
// comment of variable length.
func extractFromZip(archivePath string, dest io.Writer, exeName string) error {
	buf, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	eocd := findEOCD(buf)
	if eocd < 0 {
		return fmt.Errorf("%w: end of central directory not found", ErrArchiveFormat)
	}

	entries := int(binary.LittleEndian.Uint16(buf[eocd+10:]))
	cdOffset := int64(binary.LittleEndian.Uint32(buf[eocd+16:]))
	if cdOffset >= int64(len(buf)) {
		return fmt.Errorf("%w: central directory offset out of range", ErrArchiveFormat)
	}

	pos := cdOffset
	for i := 0; i < entries; i++ {
		if pos+zipCentralFixedSize > int64(len(buf)) {
			return fmt.Errorf("%w: truncated central directory", ErrArchiveFormat)
		}
		rec := buf[pos:]
		if binary.LittleEndian.Uint32(rec) != zipCentralSignature {
			return fmt.Errorf("%w: bad central directory signature", ErrArchiveFormat)
		}

		method := binary.LittleEndian.Uint16(rec[10:])
		compSize := int64(binary.LittleEndian.Uint32(rec[20:]))
		uncompSize := int64(binary.LittleEndian.Uint32(rec[24:]))
		nameLen := int64(binary.LittleEndian.Uint16(rec[28:]))
		extraLen := int64(binary.LittleEndian.Uint16(rec[30:]))
		commentLen := int64(binary.LittleEndian.Uint16(rec[32:]))
		localOffset := int64(binary.LittleEndian.Uint32(rec[42:]))

		if pos+zipCentralFixedSize+nameLen > int64(len(buf)) {
			return fmt.Errorf("%w: truncated central directory entry", ErrArchiveFormat)
		}
		name := string(rec[zipCentralFixedSize : zipCentralFixedSize+nameLen])

		if filepath.Base(name) == exeName {
			return inflateZipEntry(buf, dest, localOffset, method, compSize, uncompSize)
		}

		pos += zipCentralFixedSize + nameLen + extraLen + commentLen
	}

	return fmt.Errorf("%w: %s not found in archive", ErrArchiveFormat, exeName)
}

// findEOCD scans backward for the EOCD signature, returning its offset or -1.
func findEOCD(buf []byte) int {
	start := len(buf) - zipMaxEOCDScan
	if start < 0 {
		start = 0
	}
	for i := len(buf) - zipEOCDFixedSize; i >= start; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) == zipEOCDSignature {
			return i
		}
	}
	return -1
}

// inflateZipEntry validates the local header at localOffset and writes the
// entry's decompressed data to dest. Method 0 is stored, method 8 is raw
// deflate; anything else is unsupported.
func inflateZipEntry(buf []byte, dest io.Writer, localOffset int64, method uint16, compSize, uncompSize int64) error {
	if localOffset+zipLocalFixedSize > int64(len(buf)) {
		return fmt.Errorf("%w: local header offset out of range", ErrArchiveFormat)
	}
	local := buf[localOffset:]
	if binary.LittleEndian.Uint32(local) != zipLocalSignature {
		return fmt.Errorf("%w: bad local header signature", ErrArchiveFormat)
	}

	nameLen := int64(binary.LittleEndian.Uint16(local[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(local[28:]))
	dataStart := localOffset + zipLocalFixedSize + nameLen + extraLen
	if dataStart+compSize > int64(len(buf)) {
		return fmt.Errorf("%w: entry data out of range", ErrArchiveFormat)
	}
	data := buf[dataStart : dataStart+compSize]

	switch method {
	case 0: // stored
		if int64(len(data)) != uncompSize {
			return fmt.Errorf("%w: stored size mismatch", ErrArchiveFormat)
		}
		if _, err := dest.Write(data); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
		return nil

	case 8: // deflate
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		n, err := io.Copy(dest, fr)
		if err != nil {
			return fmt.Errorf("%w: inflate entry: %v", ErrArchiveFormat, err)
		}
		if n != uncompSize {
			return fmt.Errorf("%w: inflated %d bytes, expected %d", ErrArchiveFormat, n, uncompSize)
		}
		return nil

	default:
		return fmt.Errorf("%w: unsupported compression method %d", ErrArchiveFormat, method)
	}
}
