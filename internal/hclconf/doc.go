/*
Package hclconf reads the gateway's HCL configuration.

A configuration is one file or a directory of .hcl files. Every file may hold
any of the top-level blocks; when a singleton block appears in several files
the last one read wins.

	dispatcher {
	  workers    = 4
	  queue_size = 0
	  timeout    = "30s"
	}

	cache {
	  backend     = "memory"
	  ttl         = "10m"
	  max_entries = 10000
	}

	session "demo" {
	  layer "osm" {
	    projection    = "spherical mercator"
	    max_cache_age = 3600
	    provider "proxy" {
	      provider = "OPENSTREETMAP"
	    }
	  }
	}

The attributes of a provider block are opaque here: they become the layer's
provider parameters and are checked by the provider itself.
*/
package hclconf
