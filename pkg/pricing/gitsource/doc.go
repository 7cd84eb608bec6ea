// Package gitsource keeps a pricing table in sync with a git repository.
//
// Teams that review price changes as pull requests can point the meter at
// the repository holding their pricing YAML:
//
//	pricing:
//	  git:
//	    repository: https://github.com/acme/pricing.git
//	    branch: main
//	    path: meter/pricing.yaml
//	    poll_interval: 5m
//	    auth:
//	      type: token
//	      token: ${secret:pricing-repo-token}
//
// Sync clones (or reopens) the repository and loads the table. Run pulls on
// the poll interval and swaps the table into the calculator whenever HEAD
// moves. A table that fails validation is logged and the previous table
// stays active.
package gitsource
