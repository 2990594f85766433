package codec

import (
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is a schemaless value codec for callers who don't want to
// hand-write an Encode/Decode pair for every struct they store. It is
// a Value (not a Key): documents are stored, never compared.
type Document struct {
	Fields bson.M
}

// NewDocument wraps a field map as a storable Document.
func NewDocument(fields bson.M) Document {
	return Document{Fields: fields}
}

func (d Document) Encode(w io.Writer) (int, error) {
	raw, err := bson.Marshal(d.Fields)
	if err != nil {
		return 0, err
	}
	return Bytes(raw).Encode(w)
}

func (d Document) Size() int {
	raw, err := bson.Marshal(d.Fields)
	if err != nil {
		return 0
	}
	return Bytes(raw).Size()
}

// DecodeDocument is the Decoder[Document] for the type above.
func DecodeDocument(r io.Reader) (Document, error) {
	raw, err := DecodeBytes(r)
	if err != nil {
		return Document{}, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return Document{}, err
	}
	return Document{Fields: fields}, nil
}
