package page

import (
	"net/url"
)

const (
	Software = "blogfed"
	Version  = "0.1"
)

// MetaData contains server information typically used in templates
type MetaData struct {
	URL      string // full server URL with scheme, host, port
	Scheme   string // http or https
	HostName string // server hostname
	Software string
	Version  string
}

func NewMetaData(u *url.URL) MetaData {
	return MetaData{
		URL:      u.String(),
		Scheme:   u.Scheme,
		HostName: u.Hostname(),
		Software: Software,
		Version:  Version,
	}
}

// Join appends path elements to the server URL.
func (m MetaData) Join(elem ...string) string {
	s, _ := url.JoinPath(m.URL, elem...)
	return s
}
