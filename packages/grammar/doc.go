// Package grammar loads request collections from YAML grammar files.
//
// A grammar lists requests in execution order. Each request is a sequence of
// fragments plus optional post-send extraction rules:
//
//	requests:
//	  - endpoint: /stores
//	    method: POST
//	    fragments:
//	      - static: "POST "
//	      - basepath: /api
//	      - static: "/stores HTTP/1.1\r\nHost: localhost:8888\r\n"
//	      - auth: authentication_token_tag
//	      - static: "\r\n"
//	    post_send:
//	      rules:
//	        - {variable: _stores_post_id, path: /id}
//
// Documents are checked against an embedded JSON schema before compiling.
package grammar
