package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/campus-games/middleware"
	"github.com/Dosada05/campus-games/services"
	"github.com/Dosada05/campus-games/storage"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

// errorBody is the payload of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // Паника, т.к. это ошибка программиста (передан не указатель)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// responder writes error responses and logs through the injected logger.
type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return responder{logger: logger}
}

func (rs responder) errorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	env := jsonResponse{"error": errorBody{Code: code, Message: message}}
	if err := writeJSON(w, status, env, nil); err != nil {
		rs.logger.ErrorContext(r.Context(), "failed to write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (rs responder) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	rs.logger.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	rs.errorResponse(w, r, http.StatusInternalServerError, services.ErrInternal.Code, services.ErrInternal.Message)
}

func (rs responder) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	rs.errorResponse(w, r, http.StatusBadRequest, "bad_request", err.Error())
}

func (rs responder) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	rs.errorResponse(w, r, http.StatusNotFound, "not_found", "the requested resource could not be found")
}

func (rs responder) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	rs.errorResponse(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
		fmt.Sprintf("the %s method is not supported for this resource", r.Method))
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:     http.StatusBadRequest,
	services.KindConflict:       http.StatusConflict,
	services.KindNotFound:       http.StatusNotFound,
	services.KindPermission:     http.StatusForbidden,
	services.KindAuthentication: http.StatusUnauthorized,
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func (rs responder) mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	svcErr, ok := services.AsError(err)
	if !ok || svcErr.Kind == services.KindInternal {
		rs.serverErrorResponse(w, r, err)
		return
	}
	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	rs.errorResponse(w, r, status, svcErr.Code, err.Error())
}

func getIDFromURL(r *http.Request, paramName string) (int64, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s in URL path", paramName)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %q", paramName, idStr)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid %s value: %d", paramName, id)
	}
	return id, nil
}

func token(r *http.Request) string {
	return middleware.TokenFromContext(r.Context())
}

// readUpload extracts an image from a multipart form field. The content type is
// sniffed from the bytes rather than trusted from the client.
func readUpload(w http.ResponseWriter, r *http.Request, field string) (services.FileInput, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageSize+1<<20)
	if err := r.ParseMultipartForm(storage.MaxImageSize); err != nil {
		return services.FileInput{}, nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return services.FileInput{}, nil, fmt.Errorf("form field %q is required", field)
	}

	contentType, err := sniffContentType(file)
	if err != nil {
		file.Close()
		return services.FileInput{}, nil, err
	}

	closeFn := func() {
		file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	return services.FileInput{ContentType: contentType, Size: header.Size, Body: file}, closeFn, nil
}

func sniffContentType(file multipart.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

// FallbackHandler keeps router-level errors in the common error format.
type FallbackHandler struct {
	responder
}

func NewFallbackHandler(logger *slog.Logger) *FallbackHandler {
	return &FallbackHandler{responder: newResponder(logger)}
}

func (h *FallbackHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.notFoundResponse(w, r)
}

func (h *FallbackHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.methodNotAllowedResponse(w, r)
}
