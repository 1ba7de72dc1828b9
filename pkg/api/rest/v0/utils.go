package v0_rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/meower-media/feedsync/pkg/rdb"
	"github.com/meower-media/feedsync/pkg/users"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"
)

var validate = validator.New()

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	// Decode body
	contentType := r.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/json") { // default
		err := json.NewDecoder(r.Body).Decode(v)
		if err != nil {
			returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
			return false
		}
	} else {
		returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
		return false
	}

	return validateBody(w, v)
}

func validateBody(w http.ResponseWriter, v interface{}) bool {
	// Get struct type
	structType := reflect.TypeOf(v)
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	// Validate
	err := validate.Struct(v)
	if err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
			return false
		}
		errFields := make(map[string]string, len(validationErrs))
		for _, err := range validationErrs {
			field, _ := structType.FieldByName(err.StructField())
			errFields[field.Tag.Get("json")] = err.Error()
		}
		returnErr(w, http.StatusBadRequest, ErrBadRequest, errFields)
		return false
	}

	return true
}

func returnData(w http.ResponseWriter, code int, data interface{}) {
	marshaled, err := json.Marshal(data)
	if err != nil {
		returnErr(w, http.StatusInternalServerError, ErrInternal, nil)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write(marshaled)
	}
}

func returnErr(w http.ResponseWriter, code int, errType error, fields map[string]string) {
	marshaled, err := json.Marshal(ErrResp{
		Error:  true,
		Type:   errType.Error(),
		Fields: fields,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("An error occurred while sending the error response."))
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write(marshaled)
	}
}

// returnInternal reports an unexpected error and answers with a 500.
func returnInternal(w http.ResponseWriter, r *http.Request, err error) {
	opts.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	sentry.CaptureException(err)
	returnErr(w, http.StatusInternalServerError, ErrInternal, nil)
}

// Update a ratelimit for a resource (bucket) based on a scope and identifier.
//
// Only 1 ratelimit should be set before returning a response.
// Otherwise, the ratelimit headers might accidentally be overwritten.
//
// The bucket should be the action, such as 'react'.
// The scope should be one of the following: ip, user.
// The identifier should be the IP address or user ID.
func ratelimit(ctx context.Context, w http.ResponseWriter, bucket string, scope string, id string, limit int, seconds int) error {
	// Get ratelimit hash
	ratelimitHash := getRatelimitHash(bucket, scope, id)

	// Get remaining limit and TTL
	var newRemaining int
	var newTTL time.Duration
	remaining, err := rdb.Client.Get(ctx, ratelimitHash).Int()
	if err == redis.Nil {
		newRemaining = limit - 1
		newTTL = time.Duration(seconds) * time.Second
	} else if err != nil {
		return err
	} else {
		newRemaining = remaining - 1
		newTTL = rdb.Client.TTL(ctx, ratelimitHash).Val()
		if newTTL <= 0 {
			newTTL = time.Duration(seconds) * time.Second
		}
	}

	// Set new limit
	if err := rdb.Client.Set(ctx, ratelimitHash, newRemaining, newTTL).Err(); err != nil {
		return err
	}

	// Set response headers
	w.Header().Add("X-Rtl-Bucket", bucket)
	w.Header().Add("X-Rtl-Scope", scope)
	w.Header().Add("X-Rtl-Remaining", strconv.FormatInt(int64(newRemaining), 10))
	w.Header().Add("X-Rtl-Reset", strconv.FormatInt(time.Now().Add(newTTL).UnixMilli(), 10))

	return nil
}

func ratelimited(ctx context.Context, bucket string, scope string, id string) bool {
	ratelimitHash := getRatelimitHash(bucket, scope, id)
	remaining, err := rdb.Client.Get(ctx, ratelimitHash).Int()
	if err != nil || remaining > 0 {
		return false
	} else {
		return true
	}
}

func getRatelimitHash(bucket string, scope string, id string) string {
	h := sha3.NewShake256()
	h.Write([]byte("rtl"))
	h.Write([]byte(bucket))
	h.Write([]byte(scope))
	h.Write([]byte(id))

	sum := make([]byte, 32)
	h.Read(sum)
	return base64.URLEncoding.EncodeToString(sum)
}

// getAuthedUserId returns the user id of the request's session token, or ""
// when the request is not authenticated.
func getAuthedUserId(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		return ""
	}

	userId, err := users.VerifyToken(opts.TokenSecret, token)
	if err != nil {
		if err != users.ErrTokenExpired && err != users.ErrInvalidTokenSignature {
			opts.Logger.Debug().Err(err).Msg("rejected session token")
		}
		return ""
	}

	return userId
}
