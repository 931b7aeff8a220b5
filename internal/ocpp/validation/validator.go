package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator OCPP载荷验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 验证载荷结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors ValidationErrors

	if validatorErrors, ok := err.(validator.ValidationErrors); ok {
		for _, validatorError := range validatorErrors {
			validationError := ValidationError{
				Field:   validatorError.Field(),
				Tag:     validatorError.Tag(),
				Value:   fmt.Sprintf("%v", validatorError.Value()),
				Message: getErrorMessage(validatorError),
			}
			validationErrors = append(validationErrors, validationError)
		}
	} else {
		return fmt.Errorf("payload validation failed: %w", err)
	}

	return validationErrors
}

// ValidateMessageSize 验证消息大小
func (v *Validator) ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return ValidationError{
			Field:   "message",
			Tag:     "max_size",
			Value:   fmt.Sprintf("%d bytes", len(data)),
			Message: fmt.Sprintf("Message size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize),
		}
	}
	return nil
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("ocpp_datetime", validateOCPPDateTime)
	validate.RegisterValidation("ocpp_id_token", validateOCPPIdToken)
	validate.RegisterValidation("ocpp_csl", validateOCPPCommaSeparatedList)
}

// validateOCPPDateTime 验证OCPP日期时间格式
func validateOCPPDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // 空值由required标签处理
	}

	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

// validateOCPPIdToken 验证OCPP ID令牌
func validateOCPPIdToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	if len(value) > 36 {
		return false
	}

	matched, _ := regexp.MatchString(`^[a-zA-Z0-9\-*_=:+|@.]+$`, value)
	return matched
}

// validateOCPPCommaSeparatedList 验证逗号分隔列表配置值
func validateOCPPCommaSeparatedList(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	for _, item := range strings.Split(value, ",") {
		if strings.TrimSpace(item) == "" {
			return false
		}
	}
	return true
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("Field '%s' must be greater than %s", fe.Field(), fe.Param())
	case "ocpp_datetime":
		return fmt.Sprintf("Field '%s' must be a valid RFC3339 datetime", fe.Field())
	case "ocpp_id_token":
		return fmt.Sprintf("Field '%s' must be a valid ID token", fe.Field())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}
