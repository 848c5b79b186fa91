// Package sse reads and writes Server-Sent Events.
//
// # Reading
//
// Reader is a pull iterator over an event stream body. Each call to Next
// blocks until a complete frame (terminated by a blank line) is available:
//
//	r := sse.NewReader(resp.Body)
//	for {
//		frame, err := r.Next()
//		if errors.Is(err, io.EOF) || errors.Is(err, sse.ErrDone) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		handle(frame.Event, frame.Data)
//	}
//
// Multi-line data fields are joined with "\n". Comment lines (starting with
// ":") and retry fields are ignored. Some agent endpoints terminate the
// stream with a literal "[DONE]" data frame; Next reports that as ErrDone.
//
// # Writing
//
// Writer emits frames to a browser over an http.ResponseWriter and flushes
// after every frame so updates render immediately.
package sse
