package main

import "time"

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath  string
	NodeType    string
	Listen      string
	NoDashboard bool
}

// QueryFlags holds the remote connection flags of the query commands
type QueryFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
}

// LogsFlags holds flags for the logs command
type LogsFlags struct {
	N int
}

// VersionsFlags holds flags for the versions command
type VersionsFlags struct {
	Packages []string
}
