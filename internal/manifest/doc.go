// Package manifest loads the desired content of a target directory from a
// YAML file.
//
//	overrides: ./overrides
//	artifacts:
//	  - name: mod-a.jar
//	    url: https://example.com/mod-a.jar
//	    size: 1024
//	  - name: mod-b.jar
//	    bucket: s3://my-bucket?region=us-east-1
//	    key: mods/mod-b.jar
//
// Each artifact comes either from a URL or from a gocloud.dev/blob bucket.
// The manifest is only a list; it does not pick versions or filter.
package manifest
