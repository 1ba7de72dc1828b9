package posts

// Attachment describes the image uploaded alongside a post. Only its reference
// travels with the post; the bytes live in external storage.
type Attachment struct {
	Ref      string `bson:"_id" json:"ref" msgpack:"ref"`
	Mime     string `bson:"mime" json:"mime" msgpack:"mime"`
	Filename string `bson:"filename" json:"filename" msgpack:"filename"`
	Size     int64  `bson:"size" json:"size" msgpack:"size"`
}
