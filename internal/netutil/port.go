package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// SelectDebugPort picks the TCP port for the browser's remote debugging
// endpoint. A preferred port already serving CDP is returned as-is so the
// caller attaches to the running browser instead of launching a second one
// against the same profile. Otherwise the preferred port is used when free,
// then each fallback.
func SelectDebugPort(address string, preferred int, fallbacks []int, autoFallback bool) (int, error) {
	if preferred > 0 {
		ok, err := IsPortAvailable(address, preferred)
		if err != nil {
			return 0, err
		}
		if ok {
			return preferred, nil
		}
		if IsCDPLive(address, preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return 0, fmt.Errorf("preferred debug port in use by another process: %d", preferred)
		}
	}

	for _, port := range fallbacks {
		ok, err := IsPortAvailable(address, port)
		if err != nil {
			return 0, err
		}
		if ok {
			return port, nil
		}
	}

	return 0, errors.New("no available debug ports")
}

// IsPortAvailable returns true when the port can be listened on.
func IsPortAvailable(address string, port int) (bool, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}

// IsCDPLive reports whether something on the port answers the CDP version
// endpoint. Distinguishes a reusable browser from an unrelated process
// squatting on the port.
func IsCDPLive(address string, port int) bool {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(address, strconv.Itoa(port)))
	client := &http.Client{Timeout: time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
