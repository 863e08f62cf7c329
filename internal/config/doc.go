// Package config provides configuration parsing for projectform.
//
// The configuration is stored in projectform.json next to the binary or at
// the path given with --config. Missing fields keep their defaults.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 3000
//	  },
//	  "upload": {
//	    "maxFiles": 5,
//	    "maxFileSize": 5242880,
//	    "store": "disk",
//	    "dir": "tmp/uploads",
//	    "tempExpiry": "1h",
//	    "s3": {
//	      "bucket": "staging",
//	      "prefix": "uploads/"
//	    }
//	  },
//	  "backend": {
//	    "baseURL": "https://portfolio.example.com",
//	    "deletePath": "/projects/delete-image/{id}/"
//	  },
//	  "tags": {
//	    "maxTags": 10,
//	    "maxChars": 20
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.LoadFile("projectform.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
