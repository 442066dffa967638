// Package api exposes the HTTP status interface for the harvester.
package api
