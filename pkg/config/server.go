// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"flag"
)

// ServerConfig holds the CLI flags spec §6 requires every server entry
// point to accept.
type ServerConfig struct {
	Host          string
	Port          int
	Agent         string
	Mode          string
	SSLKeyFile    string
	SSLCertFile   string
	SSLCACerts    string
	SSLCertReqs   string
	Connections   string
}

// ParseServerFlags registers and parses spec §6's CLI surface
// (--host, --port, --agent, --mode, --ssl_keyfile, --ssl_certfile,
// --ssl_ca_certs, --ssl_cert_reqs) against fs, returning the resolved
// config. Pass flag.CommandLine and os.Args[1:] in production; tests pass a
// fresh FlagSet and an explicit arg slice.
func ParseServerFlags(fs *flag.FlagSet, args []string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	fs.StringVar(&cfg.Host, "host", "0.0.0.0", "address to bind the server to")
	fs.IntVar(&cfg.Port, "port", 8080, "port to listen on")
	fs.StringVar(&cfg.Agent, "agent", "", "name of the agent to serve")
	fs.StringVar(&cfg.Mode, "mode", "a2a", "server mode: a2a or responses")
	fs.StringVar(&cfg.SSLKeyFile, "ssl_keyfile", "", "TLS private key path")
	fs.StringVar(&cfg.SSLCertFile, "ssl_certfile", "", "TLS certificate path")
	fs.StringVar(&cfg.SSLCACerts, "ssl_ca_certs", "", "TLS CA bundle path")
	fs.StringVar(&cfg.SSLCertReqs, "ssl_cert_reqs", "", "TLS client certificate requirement")
	fs.StringVar(&cfg.Connections, "connections", "connections.yaml", "path to the datastore/LLM connections YAML file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TLSConfigured reports whether enough flags were given to serve over TLS.
func (c *ServerConfig) TLSConfigured() bool {
	return c.SSLKeyFile != "" && c.SSLCertFile != ""
}
