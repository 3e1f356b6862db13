// Package config loads bizlog configuration files.
//
// A configuration declares the rendering locale, the record store, the
// diff-relevant fields of each entity and the logged operations:
//
//	version: "1"
//	locale: zh-CN
//	defaultOperator: system
//	store:
//	  backend: sqlite
//	  path: records.db
//	entities:
//	  order:
//	    - {path: orderId, label: 订单ID, formatter: ORDER}
//	    - {path: orderNo, label: 订单号}
//	    - path: creator
//	      label: 创建人
//	      kind: object
//	      fields:
//	        - {path: userId, label: 用户ID}
//	operations:
//	  - name: updateOrder
//	    type: ORDER
//	    bizNo: "{{ order.orderNo }}"
//	    success: "修改了订单{{ _diff }}"
//	    entity: order
//	    before: {arg: order, lookup: orderByNo}
//	    after: {arg: order}
//
// Files are YAML or JSON. ${VAR} and ${VAR:-default} are expanded from the
// environment before parsing. Every file is checked against the embedded
// JSON Schema and then by Config.Validate.
package config
