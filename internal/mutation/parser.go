package mutation

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Catalog column names recognized in the header line.
const (
	ColSampleID   = "sampleID"
	ColChromosome = "chr"
	ColPosition   = "pos"
	ColReference  = "ref"
	ColMutant     = "mut"
)

// Parser reads mutation records from a 5-column tab- or comma-separated
// catalog (sampleID, chr, pos, ref, mut). A header line is optional and
// detected by a non-numeric position column.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	sep        string
	checked    bool
}

// NewParser creates a parser for the given catalog file. Supports plain and
// gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mutation catalog: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	if _, err := file.Read(buf); err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read mutation catalog: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek mutation catalog: %w", err)
	}

	if buf[0] == 0x1f && buf[1] == 0x8b {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open gzip catalog: %w", err)
		}
		p.gzipReader = gz
		p.reader = bufio.NewReader(gz)
	} else {
		p.reader = bufio.NewReader(file)
	}

	return p, nil
}

// NewParserFromReader creates a parser reading from r.
func NewParserFromReader(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// Close releases the underlying file handles.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// Next returns the next mutation record, or nil at end of input.
// Malformed lines return a *ParseError; callers may log and continue.
func (p *Parser) Next() (*Mutation, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line == "" && err == io.EOF {
			return nil, nil
		}
		p.lineNumber++
		atEOF := err == io.EOF

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			if atEOF {
				return nil, nil
			}
			continue
		}

		if p.sep == "" {
			p.sep = "\t"
			if !strings.Contains(line, "\t") && strings.Contains(line, ",") {
				p.sep = ","
			}
		}
		fields := strings.Split(line, p.sep)
		if len(fields) < 5 {
			return nil, &ParseError{Line: p.lineNumber, Msg: fmt.Sprintf("expected 5 columns, got %d", len(fields))}
		}

		// Skip a header line once, detected by a non-numeric pos column.
		if !p.checked {
			p.checked = true
			if _, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64); err != nil {
				if atEOF {
					return nil, nil
				}
				continue
			}
		}

		pos, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return nil, &ParseError{Line: p.lineNumber, Msg: fmt.Sprintf("invalid position %q", fields[2])}
		}

		m := &Mutation{
			SampleID: strings.TrimSpace(fields[0]),
			Chrom:    strings.TrimSpace(fields[1]),
			Pos:      pos,
			Ref:      strings.ToUpper(strings.TrimSpace(fields[3])),
			Alt:      strings.ToUpper(strings.TrimSpace(fields[4])),
		}
		if m.SampleID == "" || m.Ref == "" || m.Alt == "" {
			return nil, &ParseError{Line: p.lineNumber, Msg: "empty sample or allele field"}
		}
		return m, nil
	}
}

// ParseError reports a malformed catalog line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ReadAll reads every well-formed record, returning the mutations and the
// parse errors encountered. Parse errors are recoverable: the bad line is
// skipped and reading continues.
func ReadAll(p *Parser) ([]Mutation, []error) {
	var muts []Mutation
	var errs []error
	for {
		m, err := p.Next()
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				errs = append(errs, pe)
				continue
			}
			errs = append(errs, err)
			return muts, errs
		}
		if m == nil {
			return muts, errs
		}
		muts = append(muts, *m)
	}
}
