// Package validation はリクエスト入力の検証を提供する。
// 構造体タグによる検証結果をフィールド単位のmodel.APIErrorに変換する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/hitoshi/debatehub/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名にはJSONのキー名を使う
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// 空白のみの入力は未入力として扱う
	mustRegisterValidation(validate, "notblank", validators.NotBlank)
	mustRegisterValidation(validate, "stance", validateStance)
}

// mustRegisterValidation はカスタム検証を登録する。登録に失敗した場合は起動時にpanicする。
func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: failed to register %q: %v", tag, err))
	}
}

func validateStance(fl validator.FieldLevel) bool {
	_, err := model.ParseStance(fl.Field().String())
	return err == nil
}

// Struct は構造体を検証する。問題がなければnilを返す。
// 検証エラーはフィールド名 -> メッセージのマップを持つValidationErrorになる。
func Struct(v any) *model.APIError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(map[string]string{"_": err.Error()})
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// 同じフィールドの2件目以降は最初のメッセージを優先する
		if _, exists := fields[fe.Field()]; exists {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return model.NewValidationError(fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "必須項目です。"
	case "email":
		return "メールアドレスの形式が正しくありません。"
	case "max":
		return fmt.Sprintf("%s文字以内で入力してください。", fe.Param())
	case "min":
		return fmt.Sprintf("%s文字以上で入力してください。", fe.Param())
	case "eqfield":
		return "パスワードが一致しません。"
	case "stance":
		return "立場は for または against を指定してください。"
	default:
		return "入力値が正しくありません。"
	}
}
