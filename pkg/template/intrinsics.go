package template

// CloudFormation intrinsic functions in their JSON template form.

func Ref(id string) map[string]interface{} {
	return map[string]interface{}{"Ref": id}
}

func GetAtt(id, attribute string) map[string]interface{} {
	return map[string]interface{}{"Fn::GetAtt": []interface{}{id, attribute}}
}

func Sub(expr string) map[string]interface{} {
	return map[string]interface{}{"Fn::Sub": expr}
}

func Join(delimiter string, parts []interface{}) map[string]interface{} {
	return map[string]interface{}{"Fn::Join": []interface{}{delimiter, parts}}
}
