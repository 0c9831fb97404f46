package lib

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
)

// ResolveOutputPath expands the placeholders of an output template for one
// resource version:
//
//	%d  day of month of the blob's modification time (UTC)
//	%m  month
//	%y  year
//	%h  resource hash
//	%n  resource name
//	%s  <host>_<port> of the url the resource came from
//
// Any other %x sequence is kept as is.
func ResolveOutputPath(template string, d types.Descriptor, modTime time.Time) (string, error) {
	modTime = modTime.UTC()

	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 == len(template) {
			b.WriteByte(c)
			continue
		}

		switch template[i+1] {
		case 'd':
			b.WriteString(strconv.Itoa(modTime.Day()))
		case 'm':
			b.WriteString(strconv.Itoa(int(modTime.Month())))
		case 'y':
			b.WriteString(strconv.Itoa(modTime.Year()))
		case 'h':
			b.WriteString(d.Hash)
		case 'n':
			b.WriteString(d.ResourceName)
		case 's':
			server, err := ServerName(d.From)
			if err != nil {
				return "", err
			}
			b.WriteString(server)
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String(), nil
}

// ServerName turns "http://127.0.0.1:30120/files/x" into "127.0.0.1_30120".
// Without an explicit port, http and https use their default ports and any
// other scheme gets port 0.
func ServerName(from string) (string, error) {
	u, err := url.Parse(from)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", from, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("source url %q has no host", from)
	}

	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			port = "0"
		}
	}
	return host + "_" + port, nil
}
