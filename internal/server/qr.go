package server

import (
	"fmt"
	"io"
	"net"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/cogconvo/captioner/pkg/core"
)

// fallbackIP is used when no outbound interface can be determined.
const fallbackIP = "127.0.0.1"

// OutboundIP returns the local address used to reach the network. Nothing is
// sent: dialing UDP only selects a route.
func OutboundIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return fallbackIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return fallbackIP
	}
	return addr.IP.String()
}

// ConnectionString is what the glasses scan: "<ip>:<port> <method>".
func ConnectionString(ip string, port int, method core.RenderingMethod) string {
	return fmt.Sprintf("%s:%d %d", ip, port, int(method))
}

// RenderQR prints content as a terminal QR code to w and, when pngPath is
// set, also writes it as a PNG image.
func RenderQR(w io.Writer, content, pngPath string) error {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return fmt.Errorf("encoding QR code: %w", err)
	}
	if _, err := io.WriteString(w, qr.ToSmallString(false)); err != nil {
		return err
	}
	if pngPath != "" {
		if err := qr.WriteFile(256, pngPath); err != nil {
			return fmt.Errorf("writing QR code image: %w", err)
		}
	}
	return nil
}
