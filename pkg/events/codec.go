package events

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode marshals a row record and appends its opcode.
func Encode(code uint8, record any) ([]byte, error) {
	if _, ok := opcodes[code]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownOpCode, code)
	}
	marshaledPacket, err := msgpack.Marshal(record)
	if err != nil {
		return nil, err
	}
	return append(marshaledPacket, code), nil
}

// Decode turns a raw change-feed frame into a ChangeEvent. A frame that is
// malformed, or lacks the fields needed to apply it as a point patch, yields
// a *DecodeError.
func Decode(frame []byte) (ChangeEvent, error) {
	if len(frame) == 0 {
		return ChangeEvent{}, &DecodeError{Err: ErrEmptyFrame}
	}
	code := frame[len(frame)-1]
	info, ok := opcodes[code]
	if !ok {
		return ChangeEvent{}, &DecodeError{Err: fmt.Errorf("%w %d", ErrUnknownOpCode, code)}
	}
	body := frame[:len(frame)-1]

	switch info.table {
	case TablePost:
		var rec PostRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return ChangeEvent{}, &DecodeError{Table: info.table, Op: info.op, Err: err}
		}
		return decodePost(info.op, &rec)
	case TableComment:
		var rec CommentRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return ChangeEvent{}, &DecodeError{Table: info.table, Op: info.op, Err: err}
		}
		return decodeComment(info.op, &rec)
	default:
		var rec ReactionRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return ChangeEvent{}, &DecodeError{Table: info.table, Op: info.op, Err: err}
		}
		return decodeReaction(info.table, info.op, &rec)
	}
}

func decodePost(op Op, rec *PostRecord) (ChangeEvent, error) {
	fields := required{"id": rec.Id}
	if op == OpInsert {
		fields["channel_id"] = rec.ChannelId
		fields["author_id"] = rec.AuthorId
	}
	if err := fields.check(); err != nil {
		return ChangeEvent{}, &DecodeError{
			Table:     TablePost,
			Op:        op,
			ChannelId: str(rec.ChannelId),
			PostId:    str(rec.Id),
			Err:       err,
		}
	}

	return ChangeEvent{
		Table:      TablePost,
		Op:         op,
		Originator: originator(op, rec.AuthorId),
		ChannelId:  str(rec.ChannelId),
		Post: &posts.Post{
			Id:        str(rec.Id),
			ChannelId: str(rec.ChannelId),
			AuthorId:  str(rec.AuthorId),
			Caption:   str(rec.Caption),
			MediaRef:  str(rec.MediaRef),
			CreatedAt: timeOf(rec.CreatedAt),
		},
	}, nil
}

func decodeComment(op Op, rec *CommentRecord) (ChangeEvent, error) {
	fields := required{"id": rec.Id, "post_id": rec.PostId}
	if op == OpInsert {
		fields["channel_id"] = rec.ChannelId
		fields["author_id"] = rec.AuthorId
	}
	if err := fields.check(); err != nil {
		return ChangeEvent{}, &DecodeError{
			Table:     TableComment,
			Op:        op,
			ChannelId: str(rec.ChannelId),
			PostId:    str(rec.PostId),
			CommentId: str(rec.Id),
			Err:       err,
		}
	}

	return ChangeEvent{
		Table:      TableComment,
		Op:         op,
		Originator: originator(op, rec.AuthorId),
		ChannelId:  str(rec.ChannelId),
		Comment: &posts.Comment{
			Id:        str(rec.Id),
			PostId:    str(rec.PostId),
			ChannelId: str(rec.ChannelId),
			AuthorId:  str(rec.AuthorId),
			Body:      str(rec.Body),
			CreatedAt: timeOf(rec.CreatedAt),
		},
	}, nil
}

func decodeReaction(table Table, op Op, rec *ReactionRecord) (ChangeEvent, error) {
	fields := required{"user_id": rec.UserId, "emoji": rec.Emoji}
	target := rec.PostId
	if table == TableCommentReaction {
		target = rec.CommentId
		fields["comment_id"] = target
	} else {
		fields["post_id"] = target
	}
	if err := fields.check(); err != nil {
		return ChangeEvent{}, &DecodeError{
			Table:     table,
			Op:        op,
			PostId:    str(rec.PostId),
			CommentId: str(rec.CommentId),
			Err:       err,
		}
	}

	return ChangeEvent{
		Table:      table,
		Op:         op,
		Originator: str(rec.UserId),
		Reaction: &Reaction{
			TargetId: str(target),
			UserId:   str(rec.UserId),
			Emoji:    str(rec.Emoji),
		},
	}, nil
}

// originator of a post or comment change. The author is not the one deleting,
// so deletes carry no originator.
func originator(op Op, authorId *string) string {
	if op == OpDelete {
		return ""
	}
	return str(authorId)
}

type required map[string]*string

func (r required) check() error {
	var missing []string
	for name, v := range r {
		if v == nil || *v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
}
