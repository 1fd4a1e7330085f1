package common

import "github.com/ValentinKolb/dVer/lib/docstore"

// EncodeDocs encodes a list of documents for the Docs field of a message
func EncodeDocs(docs []docstore.Document) ([][]byte, error) {
	out := make([][]byte, len(docs))
	for i, doc := range docs {
		b, err := docstore.Encode(doc)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// DecodeDocs is the inverse of EncodeDocs
func DecodeDocs(raw [][]byte) ([]docstore.Document, error) {
	out := make([]docstore.Document, len(raw))
	for i, b := range raw {
		doc, err := docstore.Decode(b)
		if err != nil {
			return nil, err
		}
		out[i] = doc
	}
	return out, nil
}
