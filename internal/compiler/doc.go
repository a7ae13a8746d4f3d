// Package compiler turns asset definitions written in CUE or YAML into a
// validated asset graph and the policy registry its assets refer to.
//
// A definitions file declares assets and, optionally, named cron policies:
//
//	assets:
//	  - key: raw/events
//	    partitions:
//	      time_window: {cron: "0 0 * * *", start: "2024-01-01"}
//	    condition: on_missing
//	  - key: marts/daily
//	    deps: [raw/events]
//	    condition: eager
//	policies:
//	  hourly: {cron: "0 * * * *"}
//
// The CUE form keys assets by name instead of listing them:
//
//	assets: "marts/daily": {deps: ["raw/events"], condition: "eager"}
package compiler
