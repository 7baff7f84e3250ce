// Package cli implements the stattracker operator tool: payload and RLE
// codecs over stdin/stdout plus migration and archive commands against the
// store configured by STATTRACKER_* variables.
package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/FiskLee/stattracker"
	"github.com/FiskLee/stattracker/internal/codec"
	"github.com/FiskLee/stattracker/internal/rle"
)

// Commands understood by Run.
const (
	CmdCompress   = "compress"
	CmdDecompress = "decompress"
	CmdRLEEncode  = "rle-encode"
	CmdRLEDecode  = "rle-decode"
	CmdMigrate    = "migrate"
	CmdExport     = "export"
	CmdImport     = "import"
	CmdVersion    = "version"
)

var commands = []string{
	CmdCompress, CmdDecompress, CmdRLEEncode, CmdRLEDecode,
	CmdMigrate, CmdExport, CmdImport, CmdVersion,
}

// ErrUsage is returned for a missing or unknown command.
var ErrUsage = errors.New("usage: stattracker [flags] <" + strings.Join(commands, "|") + ">")

// Config holds the parsed command line.
type Config struct {
	Command string
	Timeout time.Duration
	Verbose bool
	Status  bool
}

// ParseConfig parses flags and the command name into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Timeout: 5 * time.Minute}
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall deadline for the command")
	fs.BoolVar(&cfg.Verbose, "v", false, "debug logging on stderr")
	fs.BoolVar(&cfg.Status, "status", false, "migrate: list applied migrations instead of applying")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() != 1 {
		return Config{}, ErrUsage
	}
	cfg.Command = fs.Arg(0)
	for _, c := range commands {
		if c == cfg.Command {
			return cfg, nil
		}
	}
	return Config{}, fmt.Errorf("%w: unknown command %q", ErrUsage, cfg.Command)
}

// Run executes cfg.Command with the store configuration st.
func Run(ctx context.Context, cfg Config, st stattracker.Config, in io.Reader, out, errOut io.Writer) error {
	if out == nil || errOut == nil {
		return errors.New("output is required")
	}
	if st.Logger == nil {
		level := slog.LevelInfo
		if cfg.Verbose {
			level = slog.LevelDebug
		}
		st.Logger = stattracker.NewSlogLogger(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})))
	}

	switch cfg.Command {
	case CmdVersion:
		_, err := fmt.Fprintf(out, "stattracker %s (format v%d)\n", stattracker.Version(), stattracker.FormatVersion)
		return err
	case CmdRLEEncode:
		text, err := readInput(in)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, rle.EncodeString(strings.TrimSuffix(string(text), "\n")))
		return err
	case CmdRLEDecode:
		text, err := readInput(in)
		if err != nil {
			return err
		}
		decoded, err := rle.DecodeString(strings.TrimSpace(string(text)))
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, decoded)
		return err
	}

	// Remaining commands need a store.
	if (cfg.Command == CmdMigrate || cfg.Command == CmdExport || cfg.Command == CmdImport) &&
		st.PostgresDSN == "" && st.SQLitePath == "" {
		return fmt.Errorf("%s: set STATTRACKER_POSTGRES_DSN or STATTRACKER_SQLITE_PATH", cfg.Command)
	}
	if cfg.Command == CmdImport {
		st.AutoMigrate = true
	}
	ds, err := stattracker.NewStore(st)
	if err != nil {
		return err
	}
	defer ds.Close()

	switch cfg.Command {
	case CmdCompress:
		return compress(ds, in, out)
	case CmdDecompress:
		return decompress(ds, st, in, out)
	case CmdMigrate:
		if cfg.Status {
			return migrationStatus(ctx, ds, out)
		}
		applied, err := ds.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			_, err = fmt.Fprintln(out, "schema up to date")
			return err
		}
		for _, name := range applied {
			if _, err := fmt.Fprintln(out, "applied", name); err != nil {
				return err
			}
		}
		return nil
	case CmdExport:
		n, err := ds.Export(ctx, out)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(errOut, "exported %d records\n", n)
		return err
	case CmdImport:
		n, err := ds.Import(ctx, in)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(errOut, "imported %d records\n", n)
		return err
	}
	return ErrUsage
}

func readInput(in io.Reader) ([]byte, error) {
	if in == nil {
		return nil, errors.New("input is required")
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return b, nil
}

// compress reads a JSON PlayerStats document and writes its stored payload.
func compress(ds *stattracker.Store, in io.Reader, out io.Writer) error {
	raw, err := readInput(in)
	if err != nil {
		return err
	}
	var p stattracker.PlayerStats
	if err := codec.Default.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", stattracker.ErrDeserialization, err)
	}
	payload, err := ds.EncodePayload(&p)
	if err != nil {
		return err
	}
	_, err = out.Write(payload)
	return err
}

// decompress reverses compress and writes the record as JSON.
func decompress(ds *stattracker.Store, st stattracker.Config, in io.Reader, out io.Writer) error {
	payload, err := readInput(in)
	if err != nil {
		return err
	}
	if len(st.EncryptionKey) == 0 {
		payload = bytes.TrimSpace(payload)
	}
	p, err := ds.DecodePayload(payload)
	if err != nil {
		return err
	}
	b, err := codec.Default.Marshal(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}

func migrationStatus(ctx context.Context, ds *stattracker.Store, out io.Writer) error {
	records, err := ds.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(out, "%s\t%s\n", r.Name, r.AppliedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}
