package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps request bodies in either encoding. An embedding
// enrollment of 15 x 128 floats is the largest payload, around 40 KiB as
// JSON.
const maxRequestBody = 1 << 20

const contentTypeProto = "application/x-protobuf"

var errBadBody = errors.New("invalid request body")

// isProtobuf reports whether a Content-Type or Accept value names a
// protobuf payload. Door modules send "application/x-protobuf".
func isProtobuf(v string) bool {
	for _, part := range strings.Split(v, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mt {
		case contentTypeProto, "application/protobuf", "application/octet-stream":
			return true
		}
	}
	return false
}

// wantsProtobuf is true when the caller asked for protobuf back, or sent
// protobuf and expressed no preference.
func wantsProtobuf(r *http.Request) bool {
	if accept := r.Header.Get("Accept"); accept != "" && accept != "*/*" {
		return isProtobuf(accept)
	}
	return isProtobuf(r.Header.Get("Content-Type"))
}

// decodeBody reads a JSON body, or a protobuf google.protobuf.Struct body,
// into v. Unknown fields are rejected in both encodings.
func decodeBody(r *http.Request, v any) error {
	return decode(r, v, false)
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(r *http.Request, v any) error {
	return decode(r, v, true)
}

func decode(r *http.Request, v any, optional bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if len(body) > maxRequestBody {
		return fmt.Errorf("%w: body exceeds %d bytes", errBadBody, maxRequestBody)
	}
	if optional && len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if isProtobuf(r.Header.Get("Content-Type")) {
		if body, err = protoToJSON(body); err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func protoToJSON(b []byte) ([]byte, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return protojson.Marshal(&st)
}

func jsonToProto(b []byte) ([]byte, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return proto.Marshal(&st)
}

// encodeProto renders v as a protobuf Struct via its JSON form.
func encodeProto(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonToProto(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProto(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", contentTypeProto)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
