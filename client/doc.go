// Package client provides a client for interacting with a kvs server over
// TCP.
//
// Example:
//
//	c, err := client.Connect(client.WithPort(9999))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Set([]byte("foo"), []byte("bar"))
//	val, err := c.Get([]byte("foo"))
//	if errors.Is(err, client.ErrNotFound) {
//	    ...
//	}
package client
