package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/mocksources"
)

func main() {
	addr := defaultString("MOCK_SOURCES_ADDR", ":8090")
	fixtures := defaultString("MOCK_SOURCES_FIXTURES", "")
	sitePort := defaultString("MOCK_SOURCES_SITE_PORT", "8091")
	apiKey := defaultString("MOCK_SOURCES_API_KEY", "")

	fs := flag.NewFlagSet("mock-sources", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address of the search and verification APIs")
	fs.StringVar(&fixtures, "fixtures", fixtures, "YAML fixtures file; empty uses the built-in demo businesses")
	fs.StringVar(&sitePort, "site-port", sitePort, "First port for business websites, one port per business")
	fs.StringVar(&apiKey, "api-key", apiKey, "Required api_key for the verification APIs (empty disables)")
	allowLinkedIn := fs.Bool("allow-linkedin", false, "Serve direct LinkedIn searches instead of an authwall")
	_ = fs.Parse(os.Args[1:])

	businesses := mocksources.DefaultBusinesses()
	if fixtures != "" {
		var err error
		if businesses, err = mocksources.LoadFixtures(fixtures); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixtures error: %v\n", err)
			os.Exit(2)
		}
	}
	port, err := strconv.Atoi(sitePort)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid site port %q: %v\n", sitePort, err)
		os.Exit(2)
	}

	srv := mocksources.New(businesses...)
	srv.RequireAPIKey(apiKey)
	srv.BlockLinkedIn(!*allowLinkedIn)

	errCh := make(chan error, len(businesses)+1)
	for i, b := range businesses {
		h, err := srv.SiteHandler(b.Domain)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "site error: %v\n", err)
			os.Exit(2)
		}
		siteAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port+i))
		_, _ = fmt.Fprintf(os.Stdout, "site %-20s http://%s (%s)\n", b.Domain, siteAddr, b.Name)
		go func() {
			errCh <- http.ListenAndServe(siteAddr, h)
		}()
	}

	base := "http://" + displayAddr(addr)
	_, _ = fmt.Fprintf(os.Stdout, "mock-sources listening on %s\n", addr)
	_, _ = fmt.Fprintf(os.Stdout, "  search.google_url:    %s%s\n", base, mocksources.PrefixGoogle)
	_, _ = fmt.Fprintf(os.Stdout, "  search.bing_url:      %s%s\n", base, mocksources.PrefixBing)
	_, _ = fmt.Fprintf(os.Stdout, "  search.linkedin_url:  %s%s\n", base, mocksources.PrefixLinkedIn)
	_, _ = fmt.Fprintf(os.Stdout, "  email.hunter_url:     %s%s\n", base, mocksources.PrefixHunter)
	_, _ = fmt.Fprintf(os.Stdout, "  email.zerobounce_url: %s%s\n", base, mocksources.PrefixZeroBounce)
	go func() {
		errCh <- http.ListenAndServe(addr, srv.Handler())
	}()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
