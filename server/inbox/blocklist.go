package inbox

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/tkrehbiel/blogfed/server/errs"
)

// DomainBlocklist rejects activities from blocked hosts and their subdomains.
// A nil list blocks nothing.
type DomainBlocklist struct {
	domains map[string]bool
}

func NewDomainBlocklist(domains ...string) *DomainBlocklist {
	b := &DomainBlocklist{domains: make(map[string]bool)}
	for _, d := range domains {
		b.Add(d)
	}
	return b
}

func (b *DomainBlocklist) Add(domain string) {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain != "" {
		b.domains[domain] = true
	}
}

func (b *DomainBlocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.domains)
}

func (b *DomainBlocklist) Blocked(host string) bool {
	if b == nil || host == "" {
		return false
	}
	host = strings.ToLower(host)
	for {
		if b.domains[host] {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

// ReadBlocklist parses a moderation list: either a csv export whose header
// row names a "#domain" column, or plain text with one domain per line.
// Blank lines and lines starting with # are skipped in plain text.
func ReadBlocklist(r io.Reader) (*DomainBlocklist, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(7)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errs.Wrap(errs.InvalidInput, err, "reading blocklist")
	}
	if strings.HasPrefix(string(first), "#domain") {
		return readCSV(br)
	}

	b := NewDomainBlocklist()
	sc := bufio.NewScanner(br)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// tolerate a csv without a header
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = line[:i]
		}
		b.Add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "reading blocklist")
	}
	return b, nil
}

func readCSV(r io.Reader) (*DomainBlocklist, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "reading blocklist header")
	}
	col := 0
	for i, h := range header {
		if strings.TrimSpace(h) == "#domain" {
			col = i
		}
	}
	b := NewDomainBlocklist()
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, err, "reading blocklist")
		}
		if col < len(rec) {
			b.Add(rec[col])
		}
	}
}

// LoadBlocklist reads a moderation list file. An empty path is an empty list.
func LoadBlocklist(path string) (*DomainBlocklist, error) {
	if path == "" {
		return NewDomainBlocklist(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "opening blocklist %s", path)
	}
	defer f.Close()
	return ReadBlocklist(f)
}
